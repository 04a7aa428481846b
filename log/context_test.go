package log

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestLoggerContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, GetLogger(ctx), L) // falls back to the standard entry
	assert.Equal(t, G(ctx), GetLogger(ctx))

	ctx = WithLogger(ctx, G(ctx).WithField("subnet", "subnet-a"))
	assert.Equal(t, "subnet-a", GetLogger(ctx).Data["subnet"])
	assert.Equal(t, G(ctx), GetLogger(ctx))
}

func TestFieldsContext(t *testing.T) {
	ctx := WithFields(context.Background(), logrus.Fields{
		"subnet": "subnet-a",
		"range":  "r1",
	})
	ctx = WithField(ctx, "address", "10.0.0.4")

	data := G(ctx).Data
	assert.Equal(t, "subnet-a", data["subnet"])
	assert.Equal(t, "r1", data["range"])
	assert.Equal(t, "10.0.0.4", data["address"])

	// the parent logger is left untouched
	assert.Empty(t, L.Data["address"])
}

func TestModuleContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetModulePath(ctx))

	ctx = WithModule(ctx, "registry")
	assert.Equal(t, "registry", GetModulePath(ctx))
	assert.Equal(t, "registry", GetLogger(ctx).Data["module"])

	parent, ctx := ctx, WithModule(ctx, "registry")
	assert.Equal(t, ctx, parent) // same module is a no-op

	ctx = WithModule(ctx, "restore")
	assert.Equal(t, "registry/restore", GetModulePath(ctx))
	assert.Equal(t, "registry/restore", GetLogger(ctx).Data["module"])
}
