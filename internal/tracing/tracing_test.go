package tracing

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	p, err := Setup("test-service", &buf)
	require.NoError(t, err)

	ctx, span := StartSpan(context.Background(), "push", AttrBranch.String("main"))
	RecordError(ctx, errors.New("conflict"))
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))
	out := buf.String()
	assert.Contains(t, out, `"Name":"push"`)
	assert.Contains(t, out, "repo.branch")
	assert.Contains(t, out, "conflict")
}

func TestNilProviderShutdown(t *testing.T) {
	var p *Provider
	assert.NoError(t, p.Shutdown(context.Background()))
}
