package pipeline

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline/types"
	"github.com/savaki/branch-deployer/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sourceAction(name, branch string) types.ActionDeclaration {
	return types.ActionDeclaration{
		Name: aws.String(name),
		ActionTypeId: &types.ActionTypeId{
			Category: types.ActionCategorySource,
			Owner:    types.ActionOwnerAws,
			Provider: aws.String("CodeStarSourceConnection"),
			Version:  aws.String("1"),
		},
		Configuration: map[string]string{
			"FullRepositoryId": "acme/web",
			ConfigBranchName:   branch,
		},
	}
}

func buildAction(name string) types.ActionDeclaration {
	return types.ActionDeclaration{
		Name: aws.String(name),
		ActionTypeId: &types.ActionTypeId{
			Category: types.ActionCategoryBuild,
			Owner:    types.ActionOwnerAws,
			Provider: aws.String("CodeBuild"),
			Version:  aws.String("1"),
		},
		Configuration: map[string]string{"ProjectName": "web-build"},
	}
}

func deployAction(name, stackName string) types.ActionDeclaration {
	return types.ActionDeclaration{
		Name: aws.String(name),
		ActionTypeId: &types.ActionTypeId{
			Category: types.ActionCategoryDeploy,
			Owner:    types.ActionOwnerAws,
			Provider: aws.String("CloudFormation"),
			Version:  aws.String("1"),
		},
		Configuration: map[string]string{
			"ActionMode":    "CREATE_UPDATE",
			ConfigStackName: stackName,
			"TemplatePath":  "BuildOutput::template.yml",
		},
	}
}

func sampleTemplate() *types.PipelineDeclaration {
	return &types.PipelineDeclaration{
		Name:    aws.String("template-pipeline"),
		RoleArn: aws.String("arn:aws:iam::111111111111:role/pipeline"),
		Version: aws.Int32(7),
		Stages: []types.StageDeclaration{
			{Name: aws.String("Source"), Actions: []types.ActionDeclaration{sourceAction("Source", "main")}},
			{Name: aws.String("Build"), Actions: []types.ActionDeclaration{buildAction("Build")}},
			{Name: aws.String("Deploy"), Actions: []types.ActionDeclaration{deployAction("Deploy", "app-stack")}},
		},
	}
}

func TestRender(t *testing.T) {
	template := sampleTemplate()

	got, err := Render(template, "feature-42", "feature-42-pipeline")
	require.NoError(t, err)

	assert.Equal(t, "feature-42-pipeline", aws.ToString(got.Name))
	assert.Nil(t, got.Version)
	assert.Equal(t, "feature-42", got.Stages[0].Actions[0].Configuration[ConfigBranchName])
	assert.Equal(t, "acme/web", got.Stages[0].Actions[0].Configuration["FullRepositoryId"])
	assert.Equal(t, "feature-42-app-stack", got.Stages[2].Actions[0].Configuration[ConfigStackName])
	assert.Equal(t, map[string]string{"ProjectName": "web-build"}, got.Stages[1].Actions[0].Configuration)
	assert.Equal(t, template.RoleArn, got.RoleArn)
}

func TestRender_TemplateNotMutated(t *testing.T) {
	template := sampleTemplate()
	want := sampleTemplate()

	_, err := Render(template, "feature-42", "feature-42-pipeline")
	require.NoError(t, err)

	assert.Equal(t, want, template)
}

func TestRender_PrefixesOnce(t *testing.T) {
	first, err := Render(sampleTemplate(), "feature-42", "feature-42-pipeline")
	require.NoError(t, err)

	second, err := Render(first, "feature-42", "feature-42-pipeline")
	require.NoError(t, err)

	assert.Equal(t, "feature-42-app-stack", second.Stages[2].Actions[0].Configuration[ConfigStackName])
}

func TestRender_TriggerActionByCategory(t *testing.T) {
	template := sampleTemplate()
	// approval first, source second
	template.Stages[0].Actions = []types.ActionDeclaration{
		{
			Name:         aws.String("Approve"),
			ActionTypeId: &types.ActionTypeId{Category: types.ActionCategoryApproval},
		},
		sourceAction("Source", "main"),
	}

	got, err := Render(template, "feature-42", "feature-42-pipeline")
	require.NoError(t, err)

	assert.Nil(t, got.Stages[0].Actions[0].Configuration)
	assert.Equal(t, "feature-42", got.Stages[0].Actions[1].Configuration[ConfigBranchName])
}

func TestRender_TriggerActionFallback(t *testing.T) {
	template := &types.PipelineDeclaration{
		Name: aws.String("template-pipeline"),
		Stages: []types.StageDeclaration{
			{Name: aws.String("Source"), Actions: []types.ActionDeclaration{{Name: aws.String("Source")}}},
		},
	}

	got, err := Render(template, "feature-42", "feature-42-pipeline")
	require.NoError(t, err)

	assert.Equal(t, "feature-42", got.Stages[0].Actions[0].Configuration[ConfigBranchName])
	assert.Nil(t, template.Stages[0].Actions[0].Configuration)
}

func TestRender_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		template *types.PipelineDeclaration
	}{
		{name: "nil", template: nil},
		{name: "no stages", template: &types.PipelineDeclaration{Name: aws.String("t")}},
		{name: "no actions", template: &types.PipelineDeclaration{Stages: []types.StageDeclaration{{Name: aws.String("Source")}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Render(tt.template, "feature-42", "feature-42-pipeline")
			require.Error(t, err)
			assert.Equal(t, errors.KindTemplateInvalid, errors.KindOf(err))
		})
	}
}
