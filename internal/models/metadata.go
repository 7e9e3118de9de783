package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// AddressSettings is the raw metadata read from the org: countries with optional nested states.
// Boolean attributes arrive as strings.
type AddressSettings struct {
	CountriesAndStates CountriesAndStates `json:"countriesAndStates" yaml:"countriesAndStates"`
}

type CountriesAndStates struct {
	Countries []RawCountry `json:"countries" yaml:"countries"`
}

type RawCountry struct {
	Label            string     `json:"label" yaml:"label"`
	IntegrationValue string     `json:"integrationValue" yaml:"integrationValue"`
	IsoCode          string     `json:"isoCode" yaml:"isoCode"`
	OrgDefault       FlagString `json:"orgDefault" yaml:"orgDefault"`
	Standard         FlagString `json:"standard" yaml:"standard"`
	Active           FlagString `json:"active" yaml:"active"`
	Visible          FlagString `json:"visible" yaml:"visible"`
	States           RawStates  `json:"states,omitempty" yaml:"states,omitempty"`
}

type RawState struct {
	Label            string     `json:"label" yaml:"label"`
	IntegrationValue string     `json:"integrationValue" yaml:"integrationValue"`
	IsoCode          string     `json:"isoCode" yaml:"isoCode"`
	Standard         FlagString `json:"standard" yaml:"standard"`
	Active           FlagString `json:"active" yaml:"active"`
	Visible          FlagString `json:"visible" yaml:"visible"`
}

// FlagString is a metadata boolean. It decodes from "true"/"false" strings as well as JSON booleans.
type FlagString string

// Bool is true only for the literal "true"
func (f FlagString) Bool() bool {
	return f == "true"
}

func (f *FlagString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlagString(s)
	default:
		b, err := strconv.ParseBool(string(data))
		if err != nil {
			return fmt.Errorf("invalid metadata flag %s: %w", data, err)
		}
		*f = FlagString(strconv.FormatBool(b))
	}
	return nil
}

// RawStates holds the states of a country. The metadata API returns a lone
// object instead of an array when a country has exactly one state.
type RawStates []RawState

func (s *RawStates) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = nil
		return nil
	}
	if data[0] == '[' {
		var states []RawState
		if err := json.Unmarshal(data, &states); err != nil {
			return err
		}
		*s = states
		return nil
	}
	var state RawState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	*s = RawStates{state}
	return nil
}

func (s *RawStates) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var states []RawState
		if err := value.Decode(&states); err != nil {
			return err
		}
		*s = states
	case yaml.MappingNode:
		var state RawState
		if err := value.Decode(&state); err != nil {
			return err
		}
		*s = RawStates{state}
	case yaml.ScalarNode:
		if value.Tag != "!!null" {
			return fmt.Errorf("line %d: states must be a mapping or a sequence", value.Line)
		}
		*s = nil
	default:
		return fmt.Errorf("line %d: states must be a mapping or a sequence", value.Line)
	}
	return nil
}
