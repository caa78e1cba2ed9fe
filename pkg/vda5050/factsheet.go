package vda5050

// Factsheet is published, retained, on the factsheet subtopic.
type Factsheet struct {
	Header
	TypeSpecification  TypeSpecification  `json:"typeSpecification"`
	PhysicalParameters PhysicalParameters `json:"physicalParameters"`
	ProtocolLimits     ProtocolLimits     `json:"protocolLimits"`
	ProtocolFeatures   ProtocolFeatures   `json:"protocolFeatures"`
	AGVGeometry        map[string]any     `json:"agvGeometry,omitempty"`
	LoadSpecification  map[string]any     `json:"loadSpecification,omitempty"`
}

type TypeSpecification struct {
	SeriesName        string   `json:"seriesName" mapstructure:"series-name"`
	SeriesDescription string   `json:"seriesDescription,omitempty" mapstructure:"series-description"`
	AGVKinematic      string   `json:"agvKinematic" mapstructure:"agv-kinematic"`
	AGVClass          string   `json:"agvClass" mapstructure:"agv-class"`
	MaxLoadMass       float64  `json:"maxLoadMass" mapstructure:"max-load-mass"`
	LocalizationTypes []string `json:"localizationTypes" mapstructure:"localization-types"`
	NavigationTypes   []string `json:"navigationTypes" mapstructure:"navigation-types"`
}

type PhysicalParameters struct {
	SpeedMin        float64 `json:"speedMin" mapstructure:"speed-min"`
	SpeedMax        float64 `json:"speedMax" mapstructure:"speed-max"`
	AccelerationMax float64 `json:"accelerationMax" mapstructure:"acceleration-max"`
	DecelerationMax float64 `json:"decelerationMax" mapstructure:"deceleration-max"`
	HeightMin       float64 `json:"heightMin" mapstructure:"height-min"`
	HeightMax       float64 `json:"heightMax" mapstructure:"height-max"`
	Width           float64 `json:"width" mapstructure:"width"`
	Length          float64 `json:"length" mapstructure:"length"`
}

type ProtocolLimits struct {
	MaxStringLens map[string]int     `json:"maxStringLens"`
	MaxArrayLens  map[string]int     `json:"maxArrayLens"`
	Timing        map[string]float64 `json:"timing"`
}

type ProtocolFeatures struct {
	OptionalParameters []OptionalParameter `json:"optionalParameters"`
	AGVActions         []AGVAction         `json:"agvActions"`
}

type OptionalParameter struct {
	Parameter   string `json:"parameter"`
	Support     string `json:"support"`
	Description string `json:"description,omitempty"`
}

type AGVAction struct {
	ActionType        string                `json:"actionType"`
	ActionDescription string                `json:"actionDescription,omitempty"`
	ActionScopes      []string              `json:"actionScopes"`
	ActionParameters  []ActionParameterSpec `json:"actionParameters,omitempty"`
	ResultDescription string                `json:"resultDescription,omitempty"`
	BlockingTypes     []BlockingType        `json:"blockingTypes,omitempty"`
}

type ActionParameterSpec struct {
	Key           string `json:"key"`
	ValueDataType string `json:"valueDataType"`
	Description   string `json:"description,omitempty"`
	IsOptional    bool   `json:"isOptional"`
}

// DefaultProtocolLimits mirrors the limits advertised by the vendor bridge.
func DefaultProtocolLimits() ProtocolLimits {
	return ProtocolLimits{
		MaxStringLens: map[string]int{
			"msgId": 255, "topic": 255, "serialNumber": 255, "orderId": 255, "zoneSetId": 255,
			"nodeId": 255, "edgeId": 255, "actionId": 255, "actionType": 255, "headerId": 255,
		},
		MaxArrayLens: map[string]int{
			"nodes": 1000, "edges": 1000, "actions": 100, "actionParameters": 100,
			"nodeStates": 1000, "edgeStates": 1000, "actionStates": 100, "errors": 100,
			"loads": 100, "agvActions": 100, "information": 100,
		},
		Timing: map[string]float64{
			"minOrderInterval":     1.0,
			"minStateInterval":     0.1,
			"maxNodeWaitTime":      300.0,
			"maxEdgeExecutionTime": 3600.0,
		},
	}
}
