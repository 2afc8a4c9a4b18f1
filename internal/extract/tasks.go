package extract

import (
	"fmt"

	types "github.com/uinav/appgraph-backend/internal/domain"
	pkgerr "github.com/uinav/appgraph-backend/internal/pkg/errors"
)

// ExtractTasks converts instruction blocks into draft tasks. Step kinds are a
// closed set; an unknown kind fails that task only.
func ExtractTasks(src NormalizedSource) TasksResult {
	var res TasksResult
	if src.SiteID == "" {
		res.Failures = append(res.Failures, pkgerr.Invalid("task", "", "source missing site id"))
		return res
	}

	for _, block := range src.Instructions {
		task, err := taskFromBlock(src.SiteID, block)
		if err != nil {
			res.Failures = append(res.Failures, err)
			continue
		}
		res.Tasks = append(res.Tasks, task)
	}
	return res
}

func taskFromBlock(siteID string, block InstructionBlock) (DraftTask, error) {
	if block.Name == "" {
		return DraftTask{}, pkgerr.Invalid("task", "", "instruction block missing name")
	}
	if len(block.Steps) == 0 {
		return DraftTask{}, pkgerr.Invalid("task", block.Name, "instruction block has no steps")
	}

	steps := make([]types.Step, 0, len(block.Steps))
	for i, is := range block.Steps {
		step, err := stepFromInstruction(block.Name, i, is)
		if err != nil {
			return DraftTask{}, err
		}
		steps = append(steps, step)
	}

	io := types.IOSpec{Outputs: block.Outputs}
	for _, in := range block.Inputs {
		if in.Volatility == "" {
			in.Volatility = types.VolatilityMedium
		}
		switch in.Volatility {
		case types.VolatilityHigh, types.VolatilityMedium, types.VolatilityLow:
		default:
			return DraftTask{}, pkgerr.Invalid("task", block.Name,
				fmt.Sprintf("input %q has unknown volatility %q", in.Name, in.Volatility))
		}
		io.Inputs = append(io.Inputs, in)
	}

	if block.Iterator != nil && block.Iterator.MaxIterations <= 0 {
		return DraftTask{}, pkgerr.Invalid("task", block.Name, "iterator requires a positive iteration bound")
	}

	return DraftTask{
		SiteID:   siteID,
		Name:     block.Name,
		Steps:    steps,
		IO:       io,
		Iterator: block.Iterator,
	}, nil
}

func stepFromInstruction(taskName string, idx int, is InstructionStep) (types.Step, error) {
	switch is.Kind {
	case InstructionAction:
		if is.Ref == "" {
			return types.Step{}, pkgerr.Invalid("task", taskName, fmt.Sprintf("step %d: action step missing ref", idx))
		}
		return types.Step{Kind: types.StepKindAction, ActionID: is.Ref}, nil
	case InstructionSubTask:
		if is.Ref == "" {
			return types.Step{}, pkgerr.Invalid("task", taskName, fmt.Sprintf("step %d: sub_task step missing ref", idx))
		}
		return types.Step{Kind: types.StepKindSubTask, SubTaskID: is.Ref}, nil
	case InstructionDecision:
		if is.Condition == "" {
			return types.Step{}, pkgerr.Invalid("task", taskName, fmt.Sprintf("step %d: decision step missing condition", idx))
		}
		return types.Step{Kind: types.StepKindDecision, Condition: is.Condition}, nil
	case InstructionLoop:
		if is.Ref == "" {
			return types.Step{}, pkgerr.Invalid("task", taskName, fmt.Sprintf("step %d: loop step missing ref", idx))
		}
		return types.Step{Kind: types.StepKindLoop, LoopTaskID: is.Ref}, nil
	default:
		return types.Step{}, pkgerr.Invalid("task", taskName, fmt.Sprintf("step %d: unknown kind %q", idx, is.Kind))
	}
}
