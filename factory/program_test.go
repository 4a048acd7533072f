package factory_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/hotel-loyalty-engine/factory"
	"github.com/warp/hotel-loyalty-engine/loyalty"
)

const programsYAML = `
programs:
  - hotel_id: hotel-1
    hotel_group_id: group-1
    points_per_currency_unit: 1
    points_per_night: 100
    service_type_multipliers:
      laundry: 1.2
      dining: "0.5"
    redemption:
      points_per_currency_unit: 100
      minimum: 100
      maximum: 50000
    expiration_months: 12
    tiers:
      - {name: BRONZE, min_points: 0, max_points: 999, discount_percentage: 0}
      - {name: SILVER, min_points: 1000, max_points: 2999, discount_percentage: 5}
      - {name: GOLD, min_points: 3000, discount_percentage: 10, benefits: [late-checkout]}
  - hotel_id: hotel-1
    channel: corporate
    points_per_currency_unit: 2
    redemption: {points_per_currency_unit: 100, minimum: 0}
    expiration_months: 0
    active: false
    tiers:
      - {name: MEMBER, min_points: 0, discount_percentage: 0}
`

func TestParse_YAML(t *testing.T) {
	programs, err := factory.NewProgramFactory().Parse([]byte(programsYAML), factory.FormatYAML)
	require.NoError(t, err)
	require.Len(t, programs, 2)

	hotel := programs[0]
	assert.Equal(t, "group-1", hotel.Scope())
	assert.True(t, hotel.IsActive, "active defaults to true")
	assert.True(t, hotel.Multiplier("laundry").Equal(decimal.RequireFromString("1.2")))
	assert.True(t, hotel.Multiplier("dining").Equal(decimal.RequireFromString("0.5")))
	require.NotNil(t, hotel.Redemption.Maximum)
	assert.Equal(t, int64(50000), *hotel.Redemption.Maximum)
	require.Len(t, hotel.Tiers, 3)
	assert.Equal(t, loyalty.Unbounded, hotel.Tiers[2].MaxPoints)
	assert.Equal(t, []string{"late-checkout"}, hotel.Tiers[2].Benefits)
	assert.Equal(t, int64(60), hotel.PointsForSpend(decimal.NewFromInt(50), "laundry"))

	corporate := programs[1]
	assert.Equal(t, loyalty.ProgramKey{HotelID: "hotel-1", Channel: "corporate"}, corporate.Key())
	assert.False(t, corporate.IsActive)
}

func TestParse_JSONRoundTripThroughSpec(t *testing.T) {
	f := factory.NewProgramFactory()
	programs, err := f.Parse([]byte(programsYAML), factory.FormatYAML)
	require.NoError(t, err)

	data, err := json.Marshal(factory.File{Programs: []factory.ProgramSpec{f.ToSpec(programs[0])}})
	require.NoError(t, err)

	again, err := f.Parse(data, factory.FormatJSON)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.True(t, loyalty.TiersEqual(programs[0].Tiers, again[0].Tiers))
	assert.True(t, programs[0].PointsPerNight.Equal(again[0].PointsPerNight))
	assert.Equal(t, programs[0].Redemption.Minimum, again[0].Redemption.Minimum)
}

func TestParse_RejectsOverlappingTiers(t *testing.T) {
	doc := `
programs:
  - hotel_id: hotel-1
    points_per_currency_unit: 1
    redemption: {points_per_currency_unit: 100, minimum: 100}
    expiration_months: 12
    tiers:
      - {name: BRONZE, min_points: 0, max_points: 999, discount_percentage: 0}
      - {name: SILVER, min_points: 999, discount_percentage: 5}
`
	_, err := factory.NewProgramFactory().Parse([]byte(doc), factory.FormatYAML)
	assert.ErrorIs(t, err, loyalty.ErrConfigInvalid)
}

func TestParse_RejectsBadNumbers(t *testing.T) {
	doc := `{"programs":[{"hotel_id":"h","points_per_currency_unit":"lots","redemption":{"points_per_currency_unit":100},"tiers":[{"name":"A","min_points":0,"discount_percentage":"x"}]}]}`

	_, err := factory.NewProgramFactory().Parse([]byte(doc), factory.FormatJSON)

	var ce *loyalty.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Len(t, ce.Violations, 2)
}

func TestParse_RejectsDuplicatePrograms(t *testing.T) {
	doc := `
programs:
  - {hotel_id: h, points_per_currency_unit: 1, redemption: {points_per_currency_unit: 1}, tiers: [{name: A, min_points: 0, discount_percentage: 0}]}
  - {hotel_id: h, points_per_currency_unit: 2, redemption: {points_per_currency_unit: 1}, tiers: [{name: A, min_points: 0, discount_percentage: 0}]}
`
	_, err := factory.NewProgramFactory().Parse([]byte(doc), factory.FormatYAML)
	assert.ErrorContains(t, err, "duplicate program")
}

func TestLoadFile_ChoosesFormatByExtension(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "programs.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(programsYAML), 0o600))

	programs, err := factory.LoadFile(yamlPath)
	require.NoError(t, err)
	assert.Len(t, programs, 2)

	_, err = factory.LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
