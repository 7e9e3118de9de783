package models

// Phase names one of the four ordered batches
type Phase string

const (
	PhaseAddCountries  Phase = "add-countries"
	PhaseAddStates     Phase = "add-states"
	PhaseEditCountries Phase = "edit-countries"
	PhaseEditStates    Phase = "edit-states"
)

// Phases returns the phases in execution order
func Phases() []Phase {
	return []Phase{PhaseAddCountries, PhaseAddStates, PhaseEditCountries, PhaseEditStates}
}

// Action returns the action the phase performs
func (p Phase) Action() Action {
	switch p {
	case PhaseAddCountries, PhaseAddStates:
		return ActionAdd
	case PhaseEditCountries, PhaseEditStates:
		return ActionEdit
	}
	return ""
}

// NodeType returns the kind of item the phase handles
func (p Phase) NodeType() NodeType {
	switch p {
	case PhaseAddCountries, PhaseEditCountries:
		return NodeTypeCountry
	case PhaseAddStates, PhaseEditStates:
		return NodeTypeState
	}
	return ""
}
