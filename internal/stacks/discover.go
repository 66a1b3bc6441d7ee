package stacks

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/rs/zerolog"
	"github.com/savaki/branch-deployer/internal/errors"
	"gopkg.in/yaml.v3"
)

const pipelineResourceType = "AWS::CodePipeline::Pipeline"

// AppStackName reads the template of pipelineStackName and returns the StackName
// deployed by its pipeline. Missing stacks and templates without a pipeline or a
// plain StackName yield an error of kind DiscoveryIncomplete.
func (c *Coordinator) AppStackName(ctx context.Context, pipelineStackName string) (string, error) {
	const op = "discover application stack"
	logger := zerolog.Ctx(ctx)

	out, err := c.home.GetTemplate(ctx, &cloudformation.GetTemplateInput{
		StackName:     aws.String(pipelineStackName),
		TemplateStage: types.TemplateStageOriginal,
	})
	if err != nil {
		if errors.IsStackMissing(err) {
			return "", errors.E(errors.KindDiscoveryIncomplete, op, fmt.Errorf("%w: %s", errors.ErrStackNotFound, pipelineStackName))
		}
		return "", errors.E(errors.KindUnknown, op, err)
	}

	stackName, err := DeployStackName([]byte(aws.ToString(out.TemplateBody)))
	if err != nil {
		return "", errors.E(errors.KindDiscoveryIncomplete, op, err)
	}

	logger.Info().
		Str("pipeline_stack", pipelineStackName).
		Str("stack_name", stackName).
		Msg("Discovered application stack")
	return stackName, nil
}

// DeployStackName parses a CloudFormation template body, JSON or YAML, and returns
// the StackName of the last Deploy action of its first CodePipeline resource.
func DeployStackName(body []byte) (string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}
	if len(doc.Content) == 0 {
		return "", errors.ErrNoPipelineResource
	}

	pipeline := findPipeline(lookup(doc.Content[0], "Resources"))
	if pipeline == nil {
		return "", errors.ErrNoPipelineResource
	}

	var stackName string
	stages := lookup(lookup(pipeline, "Properties"), "Stages")
	for _, stage := range sequence(stages) {
		for _, action := range sequence(lookup(stage, "Actions")) {
			category := lookup(lookup(action, "ActionTypeId"), "Category")
			if category == nil || category.Value != "Deploy" {
				continue
			}
			name := lookup(lookup(action, "Configuration"), "StackName")
			if name != nil && name.Kind == yaml.ScalarNode && name.ShortTag() == "!!str" && name.Value != "" {
				stackName = name.Value
			}
		}
	}

	if stackName == "" {
		return "", fmt.Errorf("no deploy action with a literal StackName in %s", pipelineResourceType)
	}
	return stackName, nil
}

func findPipeline(resources *yaml.Node) *yaml.Node {
	if resources == nil || resources.Kind != yaml.MappingNode {
		return nil
	}
	for i := 1; i < len(resources.Content); i += 2 {
		resource := resources.Content[i]
		if typ := lookup(resource, "Type"); typ != nil && typ.Value == pipelineResourceType {
			return resource
		}
	}
	return nil
}

// lookup returns the value for key in a mapping node, or nil
func lookup(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func sequence(n *yaml.Node) []*yaml.Node {
	if n == nil || n.Kind != yaml.SequenceNode {
		return nil
	}
	return n.Content
}
