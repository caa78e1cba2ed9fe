package routing

import "github.com/lakasli/TCP-VDA5050-bridge-server/pkg/vda5050"

// Default port categories of the vendor protocol.
const (
	PortRelocation = 19205
	PortMovement   = 19206
	PortAuthority  = 19207
	PortSafety     = 19210
	PortStatus     = 19301
)

// StatusMessageType is the status push code, also used to request a push.
const StatusMessageType = 9300

// Ports assigns a TCP port to each category of the built-in table.
type Ports struct {
	Relocation int
	Movement   int
	Authority  int
	Safety     int
	Status     int
}

func DefaultPorts() Ports {
	return Ports{
		Relocation: PortRelocation,
		Movement:   PortMovement,
		Authority:  PortAuthority,
		Safety:     PortSafety,
		Status:     PortStatus,
	}
}

// DefaultMappingsFor returns the built-in entries moved onto p.
func DefaultMappingsFor(p Ports) []Mapping {
	moved := map[int]int{
		PortRelocation: p.Relocation,
		PortMovement:   p.Movement,
		PortAuthority:  p.Authority,
		PortSafety:     p.Safety,
		PortStatus:     p.Status,
	}
	mappings := DefaultMappings()
	for i := range mappings {
		if port := moved[mappings[i].Port]; port != 0 {
			mappings[i].Port = port
		}
	}
	return mappings
}

// DefaultMappings returns the built-in routing entries.
func DefaultMappings() []Mapping {
	num := func(name string) Parameter { return Parameter{Name: name, Type: TypeNumber} }
	return []Mapping{
		{
			Action: "reloc", Port: PortRelocation, MessageType: 2002,
			PayloadFormat: FormatSingleField, BlockingType: vda5050.BlockingHard,
			Parameters: []Parameter{
				{Name: "isAuto", Type: TypeBoolean},
				{Name: "home", Type: TypeBoolean},
				num("length"), num("x"), num("y"), num("angle"),
			},
		},
		{Action: "cancelReloc", Port: PortRelocation, MessageType: 2004, PayloadFormat: FormatEmpty, BlockingType: vda5050.BlockingNone},
		{Action: PathAction, Port: PortMovement, MessageType: 3066, PayloadFormat: FormatPathMove, BlockingType: vda5050.BlockingHard},
		{Action: "pick", Port: PortMovement, MessageType: 3066, PayloadFormat: FormatMoveTaskList, BlockingType: vda5050.BlockingHard, Operation: "JackLoad"},
		{Action: "drop", Port: PortMovement, MessageType: 3066, PayloadFormat: FormatMoveTaskList, BlockingType: vda5050.BlockingHard, Operation: "JackUnload"},
		{Action: "startPause", Port: PortMovement, MessageType: 3001, PayloadFormat: FormatEmpty, BlockingType: vda5050.BlockingNone, Safety: true},
		{Action: "stopPause", Port: PortMovement, MessageType: 3002, PayloadFormat: FormatEmpty, BlockingType: vda5050.BlockingNone},
		{Action: "cancelOrder", Port: PortMovement, MessageType: 3003, PayloadFormat: FormatEmpty, BlockingType: vda5050.BlockingNone, Safety: true},
		{
			Action: "translate", Port: PortMovement, MessageType: 3055,
			PayloadFormat: FormatSingleField, BlockingType: vda5050.BlockingHard,
			Parameters: []Parameter{
				{Name: "dist", Type: TypeNumber, Required: true},
				num("vx"), num("vy"),
				{Name: "mode", Type: TypeInteger},
			},
		},
		{
			Action: "turn", Port: PortMovement, MessageType: 3056,
			PayloadFormat: FormatSingleField, BlockingType: vda5050.BlockingHard,
			Parameters: []Parameter{
				{Name: "angle", Type: TypeNumber, Required: true},
				num("vw"),
				{Name: "mode", Type: TypeInteger},
			},
		},
		{
			Action: "rotateLoad", Port: PortMovement, MessageType: 3057,
			PayloadFormat: FormatSingleField, BlockingType: vda5050.BlockingHard,
			Parameters: []Parameter{
				num("increase_spin_angle"), num("robot_spin_angle"), num("global_spin_angle"),
				{Name: "spin_direction", Type: TypeInteger},
			},
		},
		{
			Action: "clearErrors", Port: PortAuthority, MessageType: 4009,
			PayloadFormat: FormatSingleField, BlockingType: vda5050.BlockingNone, Safety: true,
			Parameters: []Parameter{{Name: "error_codes", Type: TypeList}},
		},
		{
			Action: "grabAuthority", Port: PortAuthority, MessageType: 4005,
			PayloadFormat: FormatSingleField, BlockingType: vda5050.BlockingNone,
			Parameters: []Parameter{{Name: "nick_name", Type: TypeString}},
		},
		{Action: "releaseAuthority", Port: PortAuthority, MessageType: 4006, PayloadFormat: FormatEmpty, BlockingType: vda5050.BlockingNone},
		{
			Action: "softEmc", Port: PortSafety, MessageType: 6004,
			PayloadFormat: FormatBooleanField, BlockingType: vda5050.BlockingNone, Safety: true,
			Parameters: []Parameter{{Name: "status", Type: TypeBoolean, Required: true}},
		},
		{Action: "stateRequest", Port: PortStatus, MessageType: StatusMessageType, PayloadFormat: FormatStatusData, BlockingType: vda5050.BlockingNone, Priority: "low"},
	}
}

// DefaultFeatures lists the mapped actions plus the locally answered ones.
func DefaultFeatures() []string {
	var out []string
	for _, m := range DefaultMappings() {
		if m.Action != PathAction {
			out = append(out, m.Action)
		}
	}
	return append(out, LocalActions.UnsortedList()...)
}

// Default returns the built-in table.
func Default() *Table {
	t, err := NewTable(DefaultMappings(), DefaultFeatures())
	if err != nil {
		panic(err)
	}
	return t
}
