package check

import (
	"sort"

	"github.com/shahbajlive/flowrun/internal/syntax"
	"github.com/shahbajlive/flowrun/internal/types"
)

// Input describes one available input of a run target.
type Input struct {
	// Name is the input name; call-qualified names are dotted
	// ("align.reference").
	Name string
	// Type is the declared type.
	Type types.Type
	// Required is true when the input has no default and is not optional.
	Required bool
}

// TaskInputs returns the available inputs of a task in declaration order.
func TaskInputs(task *syntax.Task) []Input {
	out := make([]Input, 0, len(task.Inputs))
	for _, d := range task.Inputs {
		out = append(out, Input{
			Name:     d.Name,
			Type:     d.Type,
			Required: d.Expr == nil && !d.Type.Optional(),
		})
	}
	return out
}

// WorkflowInputs returns the available inputs of a workflow: its own input
// declarations plus call-qualified names for required task inputs its calls
// leave unsupplied.
func WorkflowInputs(doc *syntax.Document, wf *syntax.Workflow) []Input {
	out := make([]Input, 0, len(wf.Inputs))
	for _, d := range wf.Inputs {
		out = append(out, Input{
			Name:     d.Name,
			Type:     d.Type,
			Required: d.Expr == nil && !d.Type.Optional(),
		})
	}
	var qualified []Input
	collectCallInputs(doc, wf.Body, &qualified)
	sort.SliceStable(qualified, func(i, j int) bool { return qualified[i].Name < qualified[j].Name })
	return append(out, qualified...)
}

func collectCallInputs(doc *syntax.Document, body []syntax.WorkflowNode, out *[]Input) {
	for _, node := range body {
		switch n := node.(type) {
		case *syntax.Call:
			task := doc.Task(stripNamespace(n.Target))
			if task == nil {
				continue
			}
			for _, d := range task.Inputs {
				if _, supplied := n.Inputs[d.Name]; supplied {
					continue
				}
				if d.Expr != nil {
					continue
				}
				*out = append(*out, Input{
					Name:     n.Name() + "." + d.Name,
					Type:     d.Type,
					Required: !d.Type.Optional(),
				})
			}
		case *syntax.Scatter:
			collectCallInputs(doc, n.Body, out)
		case *syntax.Conditional:
			collectCallInputs(doc, n.Body, out)
		}
	}
}

// AvailableInputs returns the input set of a document's default target as a
// name -> type map plus the required name list, in the form the JSON input
// binder consumes.
func AvailableInputs(doc *syntax.Document) (map[string]types.Type, []string, string, error) {
	wf, task, err := doc.DefaultTarget()
	if err != nil {
		return nil, nil, "", err
	}
	var inputs []Input
	var namespace string
	if wf != nil {
		inputs = WorkflowInputs(doc, wf)
		namespace = wf.Name
	} else {
		inputs = TaskInputs(task)
		namespace = task.Name
	}
	available := make(map[string]types.Type, len(inputs))
	var required []string
	for _, in := range inputs {
		available[in.Name] = in.Type
		if in.Required {
			required = append(required, in.Name)
		}
	}
	return available, required, namespace, nil
}
