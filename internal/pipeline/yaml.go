package pipeline

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// pipelineSpec is the YAML shape of a pipeline definition. Jobs are a
// list so that declaration order survives decoding.
type pipelineSpec struct {
	Name   string      `yaml:"name"`
	On     triggerSpec `yaml:"on"`
	Notify *notifySpec `yaml:"notify"`
	Jobs   []jobSpec   `yaml:"jobs"`
}

type triggerSpec struct {
	Manual   *bool            `yaml:"manual"`
	Push     *pushTriggerSpec `yaml:"push"`
	Schedule string           `yaml:"schedule"`
}

type pushTriggerSpec struct {
	Branches []string `yaml:"branches"`
}

type notifySpec struct {
	URL    string   `yaml:"url"`
	Events []string `yaml:"events"`
	Key    string   `yaml:"key"`
}

type jobSpec struct {
	ID    string            `yaml:"id"`
	Needs []string          `yaml:"needs"`
	If    string            `yaml:"if"`
	Image string            `yaml:"image"`
	Env   map[string]string `yaml:"env"`
	Steps []stepSpec        `yaml:"steps"`
}

// stepSpec is a flat union of every step kind. The kind is named by
// "uses", or inferred as a run step when "run" is set.
type stepSpec struct {
	ID      string `yaml:"id"`
	Uses    string `yaml:"uses"`
	If      string `yaml:"if"`
	Run     string `yaml:"run"`
	Timeout int    `yaml:"timeout"`
	Repo    string `yaml:"repo"`
	Ref     string `yaml:"ref"`
	Path    string `yaml:"path"`
	Name    string `yaml:"name"`
	Value   string `yaml:"value"`
	URL     string `yaml:"url"`
}

// ParseYAML decodes a pipeline definition. The result is not validated;
// call Validate before use.
func ParseYAML(data []byte) (*Pipeline, error) {
	var spec pipelineSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline: %w", err)
	}

	p := &Pipeline{
		Name: spec.Name,
		On: Triggers{
			Manual:   spec.On.Manual,
			Schedule: spec.On.Schedule,
		},
	}
	if spec.On.Push != nil {
		p.On.Push = &PushTrigger{Branches: spec.On.Push.Branches}
	}
	if spec.Notify != nil {
		p.Notify = &Notify{
			URL:    spec.Notify.URL,
			Events: spec.Notify.Events,
			Key:    spec.Notify.Key,
		}
	}

	for _, js := range spec.Jobs {
		job := &Job{
			ID:    js.ID,
			Needs: js.Needs,
			If:    Condition(js.If),
			Image: js.Image,
			Env:   js.Env,
		}
		for i, ss := range js.Steps {
			step, err := buildStep(ss)
			if err != nil {
				return nil, fmt.Errorf("job %q step[%d]: %w", js.ID, i, err)
			}
			job.Steps = append(job.Steps, step)
		}
		p.Jobs = append(p.Jobs, job)
	}

	return p, nil
}

func buildStep(ss stepSpec) (Step, error) {
	kind := ss.Uses
	if kind == "" {
		if ss.Run == "" {
			return nil, fmt.Errorf("step %q: needs either uses or run", ss.ID)
		}
		kind = "run"
	}

	switch kind {
	case "run":
		return &RunStep{
			ID:             ss.ID,
			Run:            ss.Run,
			If:             Condition(ss.If),
			TimeoutSeconds: ss.Timeout,
		}, nil
	case "checkout":
		return &CheckoutStep{
			ID:   ss.ID,
			Repo: ss.Repo,
			Ref:  ss.Ref,
			Path: ss.Path,
			If:   Condition(ss.If),
		}, nil
	case "setenv":
		return &SetenvStep{
			ID:    ss.ID,
			Name:  ss.Name,
			Value: ss.Value,
			If:    Condition(ss.If),
		}, nil
	case "upload":
		return &UploadStep{
			ID:   ss.ID,
			Path: ss.Path,
			URL:  ss.URL,
			If:   Condition(ss.If),
		}, nil
	default:
		return nil, fmt.Errorf("step %q: unknown kind %q", ss.ID, kind)
	}
}
