package pipeline_test

import (
	"testing"

	"github.com/darkcatc/pglumilineage/pkg/pipeline"
)

func TestNewLogger_BuildsALoggerForLocalAndProductionEnvs(t *testing.T) {
	for _, env := range []string{"", "local", "production", "staging"} {
		logger, err := pipeline.NewLogger(env)
		if err != nil {
			t.Fatalf("env %q: %v", env, err)
		}
		if logger == nil {
			t.Fatalf("env %q: expected a non-nil logger", env)
		}
	}
}
