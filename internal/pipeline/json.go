package pipeline

import (
	"encoding/json"
	"fmt"
)

// envelope is used for initial JSON unmarshaling to determine the step type.
type envelope struct {
	Type string `json:"type"`
}

// UnmarshalStep unmarshals a JSON step into the appropriate concrete type.
func UnmarshalStep(data []byte) (Step, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to determine step type: %w", err)
	}

	var step Step
	switch env.Type {
	case "run":
		step = &RunStep{}
	case "checkout":
		step = &CheckoutStep{}
	case "setenv":
		step = &SetenvStep{}
	case "upload":
		step = &UploadStep{}
	default:
		return nil, fmt.Errorf("unknown step type: %q", env.Type)
	}

	if err := json.Unmarshal(data, step); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s step: %w", env.Type, err)
	}

	return step, nil
}

// UnmarshalSteps unmarshals a JSON array of steps.
func UnmarshalSteps(data []byte) ([]Step, error) {
	var rawSteps []json.RawMessage
	if err := json.Unmarshal(data, &rawSteps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal steps array: %w", err)
	}

	steps := make([]Step, 0, len(rawSteps))
	for i, raw := range rawSteps {
		step, err := UnmarshalStep(raw)
		if err != nil {
			return nil, fmt.Errorf("step[%d]: %w", i, err)
		}
		steps = append(steps, step)
	}

	return steps, nil
}

// MarshalStep marshals a step with its type field included.
func MarshalStep(s Step) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}

	// Inject the type field
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	m["type"] = s.StepType()

	return json.Marshal(m)
}

// MarshalSteps marshals a slice of steps.
func MarshalSteps(steps []Step) ([]byte, error) {
	result := make([]json.RawMessage, 0, len(steps))
	for _, s := range steps {
		data, err := MarshalStep(s)
		if err != nil {
			return nil, err
		}
		result = append(result, data)
	}
	return json.Marshal(result)
}
