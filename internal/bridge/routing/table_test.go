package routing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bridgeerrors "github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/errors"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/vda5050"
)

func TestDefaultTable(t *testing.T) {
	table := Default()

	m, err := table.Lookup("pick")
	require.NoError(t, err)
	assert.Equal(t, PortMovement, m.Port)
	assert.Equal(t, uint16(3066), m.MessageType)
	assert.Equal(t, "JackLoad", m.Operation)

	path := mustLookup(t, table, PathAction)
	assert.Equal(t, m.Port, path.Port)
	assert.Equal(t, m.MessageType, path.MessageType)
	assert.NotContains(t, table.Features(), PathAction)
	for _, a := range table.AGVActions() {
		assert.NotEqual(t, PathAction, a.ActionType)
	}

	_, err = table.Lookup("fly")
	var re *bridgeerrors.RoutingError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "fly", re.Action)

	p, ok := mustLookup(t, table, "stateRequest").PriorityOverride()
	assert.True(t, ok)
	assert.Equal(t, PriorityLow, p)
	_, ok = mustLookup(t, table, "turn").PriorityOverride()
	assert.False(t, ok)

	assert.Equal(t, []int{19205, 19206, 19207, 19210, 19301}, table.Ports())
	assert.Contains(t, table.Features(), "factsheetRequest")
	assert.True(t, table.Responds(PortMovement, 3056+1000, 1000))
	assert.False(t, table.Responds(PortMovement, 3056, 1000))
	assert.False(t, table.Responds(PortSafety, 3056+1000, 1000))
}

func TestNewTableRejects(t *testing.T) {
	base := func() Mapping {
		return Mapping{Action: "a", Port: 19206, MessageType: 1, PayloadFormat: FormatEmpty, BlockingType: vda5050.BlockingNone}
	}
	tests := []struct {
		name     string
		mappings func() []Mapping
		features []string
		contains string
	}{
		{
			name: "shared wire code",
			mappings: func() []Mapping {
				a, b := base(), base()
				b.Action = "b"
				return []Mapping{a, b}
			},
			contains: "shared without a distinct operation",
		},
		{
			name: "shared code with same operation",
			mappings: func() []Mapping {
				a := Mapping{Action: "a", Port: 1, MessageType: 2, PayloadFormat: FormatMoveTaskList, BlockingType: vda5050.BlockingHard, Operation: "JackLoad"}
				b := a
				b.Action = "b"
				return []Mapping{a, b}
			},
			contains: "shared without a distinct operation",
		},
		{
			name:     "path action declared as feature",
			mappings: func() []Mapping { return DefaultMappings() },
			features: []string{"pick", PathAction},
			contains: PathAction,
		},
		{
			name:     "feature without mapping",
			mappings: func() []Mapping { return []Mapping{base()} },
			features: []string{"a", "liftUp"},
			contains: "liftUp",
		},
		{
			name: "duplicate action",
			mappings: func() []Mapping {
				a, b := base(), base()
				b.MessageType = 2
				return []Mapping{a, b}
			},
			contains: "Duplicate value",
		},
		{
			name: "bad parameter type",
			mappings: func() []Mapping {
				a := base()
				a.PayloadFormat = FormatSingleField
				a.Parameters = []Parameter{{Name: "x", Type: "float"}}
				return []Mapping{a}
			},
			contains: "parameters[0].type",
		},
		{
			name: "moveTaskList without operation",
			mappings: func() []Mapping {
				a := base()
				a.PayloadFormat = FormatMoveTaskList
				return []Mapping{a}
			},
			contains: "operation",
		},
		{
			name: "booleanField without boolean",
			mappings: func() []Mapping {
				a := base()
				a.PayloadFormat = FormatBooleanField
				a.Parameters = []Parameter{{Name: "status", Type: TypeString}}
				return []Mapping{a}
			},
			contains: "exactly one boolean",
		},
		{
			name: "unknown priority",
			mappings: func() []Mapping {
				a := base()
				a.Priority = "urgent"
				return []Mapping{a}
			},
			contains: "priority",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.mappings(), tt.features)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestLoad(t *testing.T) {
	doc := `
features: [liftUp, factsheetRequest]
mappings:
  - action: liftUp
    port: 19206
    messageType: 3070
    payloadFormat: singleField
    blockingType: HARD
    parameters:
      - name: height
        type: number
        required: true
`
	table, err := Load(strings.NewReader(doc))
	require.NoError(t, err)
	m := mustLookup(t, table, "liftUp")
	assert.Equal(t, vda5050.BlockingHard, m.BlockingType)
	assert.Equal(t, []string{"factsheetRequest", "liftUp"}, table.Features())

	_, err = Load(strings.NewReader("mappings:\n  - action: x\n    colour: red\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "colour")

	_, err = Load(strings.NewReader(""))
	require.Error(t, err)
}

func TestAGVActions(t *testing.T) {
	actions := Default().AGVActions()
	byType := map[string]vda5050.AGVAction{}
	for _, a := range actions {
		byType[a.ActionType] = a
	}
	require.Contains(t, byType, "translate")
	assert.Equal(t, []vda5050.BlockingType{vda5050.BlockingHard}, byType["translate"].BlockingTypes)
	require.NotEmpty(t, byType["translate"].ActionParameters)
	assert.Equal(t, "dist", byType["translate"].ActionParameters[0].Key)
	assert.False(t, byType["translate"].ActionParameters[0].IsOptional)
	assert.Equal(t, []string{"NODE"}, byType["pick"].ActionScopes)
	assert.Equal(t, []string{"INSTANT"}, byType["factsheetRequest"].ActionScopes)
}

func mustLookup(t *testing.T, table *Table, action string) *Mapping {
	t.Helper()
	m, err := table.Lookup(action)
	require.NoError(t, err)
	return m
}

func TestDefaultMappingsFor(t *testing.T) {
	ports := DefaultPorts()
	ports.Movement = 29206
	ports.Status = 29301

	table, err := NewTable(DefaultMappingsFor(ports), DefaultFeatures())
	require.NoError(t, err)

	assert.Equal(t, 29206, mustLookup(t, table, "drop").Port)
	assert.Equal(t, 29301, mustLookup(t, table, "stateRequest").Port)
	assert.Equal(t, PortRelocation, mustLookup(t, table, "reloc").Port)
	assert.Equal(t, []int{PortRelocation, PortAuthority, PortSafety, 29206, 29301}, table.Ports())
}
