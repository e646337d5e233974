package demo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniledger/usqf/pkg/usqf"
)

func TestNewUserDescriptorIsValid(t *testing.T) {
	desc := NewUserDescriptor()
	require.NoError(t, desc.Validate())
	assert.Equal(t, "user", desc.Entity.Name)
	assert.Equal(t, "e", desc.RootAlias)
}

func TestNewUserDescriptorSubqueryFieldIsAddressableByAlias(t *testing.T) {
	desc := NewUserDescriptor()

	target, ok := desc.Aliases["companyName"]
	require.True(t, ok)
	assert.Equal(t, "company.companyName", target)

	_, ok = desc.SubqueryFields[target]
	assert.True(t, ok)
}

func TestNewUserDescriptorRegistersCleanly(t *testing.T) {
	reg := usqf.NewRegistry()
	require.NoError(t, reg.Register(NewUserDescriptor()))

	_, ok := reg.Get("user")
	assert.True(t, ok)
}
