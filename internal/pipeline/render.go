package pipeline

import (
	"maps"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline/types"
	"github.com/savaki/branch-deployer/internal/errors"
	"github.com/savaki/branch-deployer/internal/naming"
)

// Action configuration keys
const (
	ConfigBranchName = "BranchName"
	ConfigStackName  = "StackName"
)

// Render returns a copy of template named pipelineName whose trigger action watches
// branch and whose every StackName carries the "<branch>-" prefix exactly once.
func Render(template *types.PipelineDeclaration, branch, pipelineName string) (*types.PipelineDeclaration, error) {
	const op = "render pipeline"

	if template == nil || len(template.Stages) == 0 {
		return nil, errors.E(errors.KindTemplateInvalid, op, nil)
	}

	decl := clone(template)
	decl.Name = aws.String(pipelineName)
	decl.Version = nil

	trigger := triggerAction(decl)
	if trigger == nil {
		return nil, errors.E(errors.KindTemplateInvalid, op, nil)
	}
	if trigger.Configuration == nil {
		trigger.Configuration = map[string]string{}
	}
	trigger.Configuration[ConfigBranchName] = branch

	for i := range decl.Stages {
		for j := range decl.Stages[i].Actions {
			action := &decl.Stages[i].Actions[j]
			if v, ok := action.Configuration[ConfigStackName]; ok {
				action.Configuration[ConfigStackName] = naming.PrefixStackName(branch, v)
			}
		}
	}

	return decl, nil
}

// clone copies the parts of the declaration that Render modifies
func clone(template *types.PipelineDeclaration) *types.PipelineDeclaration {
	decl := *template
	decl.Stages = make([]types.StageDeclaration, len(template.Stages))
	for i, stage := range template.Stages {
		stage.Actions = make([]types.ActionDeclaration, len(template.Stages[i].Actions))
		for j, action := range template.Stages[i].Actions {
			action.Configuration = maps.Clone(action.Configuration)
			stage.Actions[j] = action
		}
		decl.Stages[i] = stage
	}
	return &decl
}

// triggerAction returns the first Source action. Templates without category
// information fall back to the first action of the first stage.
func triggerAction(decl *types.PipelineDeclaration) *types.ActionDeclaration {
	for i := range decl.Stages {
		for j := range decl.Stages[i].Actions {
			action := &decl.Stages[i].Actions[j]
			if action.ActionTypeId != nil && action.ActionTypeId.Category == types.ActionCategorySource {
				return action
			}
		}
	}
	if len(decl.Stages[0].Actions) == 0 {
		return nil
	}
	return &decl.Stages[0].Actions[0]
}

// deployStackName returns the unprefixed StackName of the last Deploy action that has one.
// Actions without category information are considered too.
func deployStackName(decl *types.PipelineDeclaration) string {
	var stackName string
	for _, stage := range decl.Stages {
		for _, action := range stage.Actions {
			if action.ActionTypeId != nil && action.ActionTypeId.Category != types.ActionCategoryDeploy {
				continue
			}
			if v := action.Configuration[ConfigStackName]; v != "" {
				stackName = v
			}
		}
	}
	return stackName
}
