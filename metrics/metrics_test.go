package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/chazu/rat25s/compiler"
)

func TestObserve(t *testing.T) {
	okBefore := testutil.ToFloat64(compileRuns.WithLabelValues(OutcomeOK))
	errBefore := testutil.ToFloat64(compileRuns.WithLabelValues(OutcomeError))
	syntaxBefore := testutil.ToFloat64(compileErrors.WithLabelValues("SyntaxError"))

	res, err := compiler.Compile("$$ integer x; $$ x = 1; $$", compiler.DefaultOptions())
	Observe(res, err)
	res, err = compiler.Compile("$$ integer x $$", compiler.DefaultOptions())
	Observe(res, err)

	assert.Equal(t, okBefore+1, testutil.ToFloat64(compileRuns.WithLabelValues(OutcomeOK)))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(compileRuns.WithLabelValues(OutcomeError)))
	assert.Equal(t, syntaxBefore+1, testutil.ToFloat64(compileErrors.WithLabelValues("SyntaxError")))
	assert.Equal(t, 1, testutil.CollectAndCount(instructionsEmitted))
}
