package workflow

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mrz1836/taskpanel/internal/constants"
	"github.com/mrz1836/taskpanel/internal/domain"
	"github.com/mrz1836/taskpanel/internal/errors"
)

// yamlWorkflow is the YAML workflow document shape. Unknown keys at either
// level are rejected by the strict decoder.
type yamlWorkflow struct {
	Steps []string   `yaml:"steps"`
	Tasks []yamlTask `yaml:"tasks"`
}

type yamlTask struct {
	Name        string    `yaml:"name"`
	Info        string    `yaml:"info"`
	Description string    `yaml:"description"`
	Steps       yaml.Node `yaml:"steps"`
}

// ParseYAML parses the YAML workflow form.
//
// The optional top-level steps list fixes the step column order; when it is
// omitted the order is inferred from first appearance across tasks. A task's
// steps value is a mapping from step name to command string (or null for a
// no-op). description, when present, replaces info and may be multiline.
func ParseYAML(data []byte) (*domain.Workflow, error) {
	var doc yamlWorkflow
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("%w: %w", errors.ErrUnknownKey, err)
		}
		return nil, err
	}

	headers := append([]string(nil), doc.Steps...)
	explicit := len(headers) > 0

	type parsedTask struct {
		name, info string
		commands   map[string]string
		order      []string
	}
	parsed := make([]parsedTask, 0, len(doc.Tasks))

	for i := range doc.Tasks {
		yt := &doc.Tasks[i]
		if yt.Name == "" {
			return nil, fmt.Errorf("task %d: name %w", i, errors.ErrEmptyValue)
		}

		info := yt.Info
		if yt.Description != "" {
			info = yt.Description
		}

		commands, order, err := decodeStepMapping(&yt.Steps, yt.Name)
		if err != nil {
			return nil, err
		}

		if explicit {
			known := make(map[string]struct{}, len(headers))
			for _, h := range headers {
				known[h] = struct{}{}
			}
			for _, name := range order {
				if _, ok := known[name]; !ok {
					return nil, fmt.Errorf("%w: task %q references undeclared step %q",
						errors.ErrUnknownKey, yt.Name, name)
				}
			}
		} else {
			for _, name := range order {
				if !containsString(headers, name) {
					headers = append(headers, name)
				}
			}
		}

		parsed = append(parsed, parsedTask{name: yt.Name, info: info, commands: commands, order: order})
	}

	wf := &domain.Workflow{Headers: headers}
	for _, pt := range parsed {
		task := domain.Task{Name: pt.name, Info: pt.info, Steps: make([]domain.Step, len(headers))}
		for j, h := range headers {
			task.Steps[j] = domain.Step{Header: h, Command: pt.commands[h]}
		}
		wf.Tasks = append(wf.Tasks, task)
	}

	if err := validate(wf); err != nil {
		return nil, err
	}
	return wf, nil
}

// decodeStepMapping decodes a task's steps node, preserving key order.
// An absent node yields no steps; anything but a mapping is an error.
func decodeStepMapping(node *yaml.Node, taskName string) (map[string]string, []string, error) {
	commands := make(map[string]string)
	var order []string

	if node.Kind == 0 || node.Tag == "!!null" {
		return commands, order, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, nil, fmt.Errorf("task %q: steps must be a mapping of step name to command", taskName)
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		val := node.Content[i+1]

		name := key.Value
		if name == "" {
			return nil, nil, fmt.Errorf("task %q: step name %w", taskName, errors.ErrEmptyValue)
		}
		if _, dup := commands[name]; dup {
			return nil, nil, fmt.Errorf("task %q: step %q declared twice", taskName, name)
		}

		cmd := ""
		if val.Tag != "!!null" {
			cmd = val.Value
		}
		commands[name] = cmd
		order = append(order, name)
	}

	return commands, order, nil
}

// ToYAML renders a workflow in the YAML form, preserving step order via an
// explicit top-level steps list. Used by the --to-yaml conversion path.
func ToYAML(wf *domain.Workflow) ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}

	appendKey(root, "steps")
	stepsNode := &yaml.Node{Kind: yaml.SequenceNode}
	for _, h := range wf.Headers {
		stepsNode.Content = append(stepsNode.Content, scalarNode(h))
	}
	root.Content = append(root.Content, stepsNode)

	appendKey(root, "tasks")
	tasksNode := &yaml.Node{Kind: yaml.SequenceNode}
	for i := range wf.Tasks {
		tasksNode.Content = append(tasksNode.Content, taskNode(&wf.Tasks[i]))
	}
	root.Content = append(root.Content, tasksNode)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteYAML converts a workflow to YAML and writes it to path.
func WriteYAML(wf *domain.Workflow, path string) error {
	data, err := ToYAML(wf)
	if err != nil {
		return errors.Wrap(err, "failed to render workflow as YAML")
	}
	if err := os.WriteFile(path, data, constants.FilePerm); err != nil {
		return errors.Wrapf(err, "failed to write %q", path)
	}
	return nil
}

// taskNode builds the YAML node for one task. Empty commands render as null
// so the converted file round-trips through ParseYAML.
func taskNode(t *domain.Task) *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode}

	appendKey(n, "name")
	n.Content = append(n.Content, scalarNode(t.Name))

	if t.Info != "" {
		appendKey(n, "info")
		n.Content = append(n.Content, scalarNode(t.Info))
	}

	appendKey(n, "steps")
	steps := &yaml.Node{Kind: yaml.MappingNode}
	for _, s := range t.Steps {
		steps.Content = append(steps.Content, scalarNode(s.Header))
		if s.Empty() {
			steps.Content = append(steps.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"})
		} else {
			steps.Content = append(steps.Content, scalarNode(s.Command))
		}
	}
	n.Content = append(n.Content, steps)

	return n
}

func appendKey(n *yaml.Node, key string) {
	n.Content = append(n.Content, scalarNode(key))
}

func scalarNode(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
