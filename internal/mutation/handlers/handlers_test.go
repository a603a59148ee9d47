package handlers_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/temirov/repofleet/internal/mutation"
	"github.com/temirov/repofleet/internal/mutation/handlers"
	"github.com/temirov/repofleet/internal/shared"
)

const testWorkingCopyPathConstant = "/workspace/api"

func newWorkingCopy() shared.WorkingCopy {
	return shared.WorkingCopy{
		Descriptor:    shared.RepositoryDescriptor{Owner: "acme", Name: "api", DefaultBranch: "main"},
		Path:          testWorkingCopyPathConstant,
		DefaultBranch: "main",
	}
}

func seedFiles(testInstance *testing.T, fileSystem afero.Fs, files map[string]string) {
	testInstance.Helper()
	for relativePath, contents := range files {
		require.NoError(testInstance, afero.WriteFile(fileSystem, filepath.Join(testWorkingCopyPathConstant, relativePath), []byte(contents), 0o644))
	}
}

func readFile(testInstance *testing.T, fileSystem afero.Fs, relativePath string) string {
	testInstance.Helper()
	contents, readError := afero.ReadFile(fileSystem, filepath.Join(testWorkingCopyPathConstant, relativePath))
	require.NoError(testInstance, readError)
	return string(contents)
}

func buildHandler(testInstance *testing.T, fileSystem afero.Fs, handlerName string, options map[string]any) mutation.Handler {
	testInstance.Helper()
	handler, buildError := mutation.DefaultRegistry().Build(mutation.Definition{
		Handler:       handlerName,
		Branch:        "TICKET-1/change",
		CommitMessage: "Apply change",
		Options:       options,
	}, mutation.Environment{FileSystem: fileSystem})
	require.NoError(testInstance, buildError)
	return handler
}

// applyTwice asserts applicability, applies, and asserts the second pass is a no-op.
func applyTwice(testInstance *testing.T, handler mutation.Handler) mutation.ChangeSet {
	testInstance.Helper()
	applicable, applicabilityError := handler.IsApplicable(context.Background(), newWorkingCopy())
	require.NoError(testInstance, applicabilityError)
	require.True(testInstance, applicable)

	changeSet, applyError := handler.Apply(context.Background(), newWorkingCopy())
	require.NoError(testInstance, applyError)

	applicable, applicabilityError = handler.IsApplicable(context.Background(), newWorkingCopy())
	require.NoError(testInstance, applicabilityError)
	require.False(testInstance, applicable)

	secondChangeSet, secondError := handler.Apply(context.Background(), newWorkingCopy())
	require.NoError(testInstance, secondError)
	require.True(testInstance, secondChangeSet.IsEmpty())
	return changeSet
}

func TestBuiltInHandlersAreRegistered(testInstance *testing.T) {
	names := make([]string, 0)
	for _, registration := range mutation.DefaultRegistry().Registrations() {
		names = append(names, registration.Name)
		require.NotEmpty(testInstance, registration.Description)
	}
	require.Subset(testInstance, names, []string{
		handlers.FileRemoveHandlerName,
		handlers.LineAppendHandlerName,
		handlers.PatternReplaceHandlerName,
		handlers.YAMLFieldHandlerName,
	})
}

func TestLineAppendHandler(testInstance *testing.T) {
	fileSystem := afero.NewMemMapFs()
	seedFiles(testInstance, fileSystem, map[string]string{".gitignore": "node_modules/"})

	handler := buildHandler(testInstance, fileSystem, handlers.LineAppendHandlerName, map[string]any{
		"file":    ".gitignore",
		"comment": "# Ignore Excel files",
		"lines":   []any{"*.xls*", "node_modules/"},
	})
	require.Equal(testInstance, []string{".gitignore"}, handler.StagePatterns())

	changeSet := applyTwice(testInstance, handler)
	require.Equal(testInstance, []string{".gitignore"}, changeSet.Paths())
	require.Equal(testInstance, "node_modules/\n# Ignore Excel files\n*.xls*\n", readFile(testInstance, fileSystem, ".gitignore"))
}

func TestLineAppendHandlerCreatesMissingFile(testInstance *testing.T) {
	fileSystem := afero.NewMemMapFs()
	require.NoError(testInstance, fileSystem.MkdirAll(testWorkingCopyPathConstant, 0o755))

	handler := buildHandler(testInstance, fileSystem, handlers.LineAppendHandlerName, map[string]any{"file": ".gitignore", "lines": "*.xls*"})
	applyTwice(testInstance, handler)
	require.Equal(testInstance, "*.xls*\n", readFile(testInstance, fileSystem, ".gitignore"))
}

func TestFileRemoveHandler(testInstance *testing.T) {
	fileSystem := afero.NewMemMapFs()
	seedFiles(testInstance, fileSystem, map[string]string{
		"network/boilerplate.tf": "x",
		"storage/boilerplate.tf": "y",
		"storage/main.tf":        "z",
		"boilerplate.tf":         "root",
	})

	handler := buildHandler(testInstance, fileSystem, handlers.FileRemoveHandlerName, map[string]any{"patterns": []any{"*/boilerplate.tf"}})
	changeSet := applyTwice(testInstance, handler)

	require.Equal(testInstance, []string{"network/boilerplate.tf", "storage/boilerplate.tf"}, changeSet.Paths())
	require.Equal(testInstance, []string{"*/boilerplate.tf"}, handler.StagePatterns())
	rootFileExists, _ := afero.Exists(fileSystem, filepath.Join(testWorkingCopyPathConstant, "boilerplate.tf"))
	require.True(testInstance, rootFileExists)
	mainExists, _ := afero.Exists(fileSystem, filepath.Join(testWorkingCopyPathConstant, "storage/main.tf"))
	require.True(testInstance, mainExists)
}

func TestPatternReplaceHandler(testInstance *testing.T) {
	fileSystem := afero.NewMemMapFs()
	seedFiles(testInstance, fileSystem, map[string]string{
		"network/boilerplate.tf": `bucket = "tflock-network"`,
		"storage/boilerplate.tf": `bucket = "tflock-terraform"`,
		"storage/other.tf":       `bucket = "tflock-other"`,
	})

	handler := buildHandler(testInstance, fileSystem, handlers.PatternReplaceHandlerName, map[string]any{
		"files":       "*/boilerplate.tf",
		"pattern":     `"tflock-[^"]*"`,
		"replacement": `"tflock-terraform"`,
	})
	changeSet := applyTwice(testInstance, handler)

	require.Equal(testInstance, []string{"network/boilerplate.tf"}, changeSet.Paths())
	require.Equal(testInstance, `bucket = "tflock-terraform"`, readFile(testInstance, fileSystem, "network/boilerplate.tf"))
	require.Equal(testInstance, `bucket = "tflock-other"`, readFile(testInstance, fileSystem, "storage/other.tf"))
}

func TestPatternReplaceHandlerNotApplicableWithoutMatches(testInstance *testing.T) {
	fileSystem := afero.NewMemMapFs()
	seedFiles(testInstance, fileSystem, map[string]string{"devops/packaging/app.dsl": "json({\n  ruby\n"})

	handler := buildHandler(testInstance, fileSystem, handlers.PatternReplaceHandlerName, map[string]any{
		"files":       "devops/packaging/*.dsl",
		"pattern":     `(?s)json\(\{\n(\s+)python`,
		"replacement": "json({\n${1}scm_repository: 'x',\n${1}python",
	})
	applicable, applicabilityError := handler.IsApplicable(context.Background(), newWorkingCopy())
	require.NoError(testInstance, applicabilityError)
	require.False(testInstance, applicable)
}

func TestYAMLFieldHandler(testInstance *testing.T) {
	testCases := []struct {
		name             string
		seed             string
		options          map[string]any
		expectedContents string
	}{
		{
			name:             "static_value",
			seed:             "# metadata\nowner: devops\n",
			options:          map[string]any{"key": "billing_entity", "value": "devops"},
			expectedContents: "# metadata\nowner: devops\nbilling_entity: devops\n",
		},
		{
			name: "rule_on_existing_field",
			seed: "owner: datawarehouse-team\n",
			options: map[string]any{
				"key":   "billing_entity",
				"value": "digital_innovation",
				"rules": []any{
					map[string]any{"field": "owner", "match": "devops", "value": "devops"},
					map[string]any{"field": "owner", "match": "datawarehouse", "value": "data_architecture"},
				},
			},
			expectedContents: "owner: datawarehouse-team\nbilling_entity: data_architecture\n",
		},
		{
			name: "rule_on_repository_name",
			seed: "owner: someone\n",
			options: map[string]any{
				"key":   "billing_entity",
				"value": "digital_innovation",
				"rules": []any{map[string]any{"match": "^ap", "value": "platform"}},
			},
			expectedContents: "owner: someone\nbilling_entity: platform\n",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			fileSystem := afero.NewMemMapFs()
			seedFiles(testInstance, fileSystem, map[string]string{"repository_metadata.yaml": testCase.seed})

			handler := buildHandler(testInstance, fileSystem, handlers.YAMLFieldHandlerName, testCase.options)
			changeSet := applyTwice(testInstance, handler)
			require.Equal(testInstance, []string{"repository_metadata.yaml"}, changeSet.Paths())
			require.Equal(testInstance, testCase.expectedContents, readFile(testInstance, fileSystem, "repository_metadata.yaml"))
		})
	}
}

func TestYAMLFieldHandlerSkipsMissingFileUnlessCreating(testInstance *testing.T) {
	fileSystem := afero.NewMemMapFs()
	require.NoError(testInstance, fileSystem.MkdirAll(testWorkingCopyPathConstant, 0o755))

	handler := buildHandler(testInstance, fileSystem, handlers.YAMLFieldHandlerName, map[string]any{"key": "tier", "value": 2})
	applicable, applicabilityError := handler.IsApplicable(context.Background(), newWorkingCopy())
	require.NoError(testInstance, applicabilityError)
	require.False(testInstance, applicable)

	creating := buildHandler(testInstance, fileSystem, handlers.YAMLFieldHandlerName, map[string]any{"key": "tier", "value": 2, "create": true})
	applyTwice(testInstance, creating)
	require.Equal(testInstance, "tier: 2\n", readFile(testInstance, fileSystem, "repository_metadata.yaml"))
}

func TestYAMLFieldHandlerSkipsWhenNoRuleMatches(testInstance *testing.T) {
	fileSystem := afero.NewMemMapFs()
	seedFiles(testInstance, fileSystem, map[string]string{"repository_metadata.yaml": "team: core\n"})

	handler := buildHandler(testInstance, fileSystem, handlers.YAMLFieldHandlerName, map[string]any{
		"key":   "tier",
		"rules": []any{map[string]any{"field": "team", "match": "^payments$", "value": "gold"}},
	})
	applicable, applicabilityError := handler.IsApplicable(context.Background(), newWorkingCopy())
	require.NoError(testInstance, applicabilityError)
	require.False(testInstance, applicable)

	changeSet, applyError := handler.Apply(context.Background(), newWorkingCopy())
	require.NoError(testInstance, applyError)
	require.True(testInstance, changeSet.IsEmpty())
	require.Equal(testInstance, "team: core\n", readFile(testInstance, fileSystem, "repository_metadata.yaml"))
}

func TestYAMLFieldHandlerRejectsNonMapping(testInstance *testing.T) {
	fileSystem := afero.NewMemMapFs()
	seedFiles(testInstance, fileSystem, map[string]string{"repository_metadata.yaml": "- a\n- b\n"})

	handler := buildHandler(testInstance, fileSystem, handlers.YAMLFieldHandlerName, map[string]any{"key": "tier", "value": 2})
	_, applicabilityError := handler.IsApplicable(context.Background(), newWorkingCopy())
	require.Error(testInstance, applicabilityError)
}

func TestHandlerOptionValidation(testInstance *testing.T) {
	testCases := []struct {
		name        string
		handlerName string
		options     map[string]any
	}{
		{name: "line_append_without_file", handlerName: handlers.LineAppendHandlerName, options: map[string]any{"lines": "x"}},
		{name: "line_append_without_lines", handlerName: handlers.LineAppendHandlerName, options: map[string]any{"file": ".gitignore"}},
		{name: "line_append_escaping_file", handlerName: handlers.LineAppendHandlerName, options: map[string]any{"file": "../outside", "lines": "x"}},
		{name: "file_remove_without_patterns", handlerName: handlers.FileRemoveHandlerName, options: map[string]any{}},
		{name: "file_remove_git_metadata", handlerName: handlers.FileRemoveHandlerName, options: map[string]any{"patterns": ".git/config"}},
		{name: "pattern_replace_invalid_expression", handlerName: handlers.PatternReplaceHandlerName, options: map[string]any{"files": "*.tf", "pattern": "("}},
		{name: "yaml_field_without_key", handlerName: handlers.YAMLFieldHandlerName, options: map[string]any{"value": 1}},
		{name: "yaml_field_without_value", handlerName: handlers.YAMLFieldHandlerName, options: map[string]any{"key": "tier"}},
		{name: "unknown_option", handlerName: handlers.LineAppendHandlerName, options: map[string]any{"file": ".gitignore", "lines": "x", "mode": "y"}},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			_, buildError := mutation.DefaultRegistry().Build(mutation.Definition{
				Handler:       testCase.handlerName,
				Branch:        "b",
				CommitMessage: "m",
				Options:       testCase.options,
			}, mutation.Environment{FileSystem: afero.NewMemMapFs()})
			require.Error(testInstance, buildError)
		})
	}
}
