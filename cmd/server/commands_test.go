package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/tasksync/internal/application/service"
	"github.com/garyjia/tasksync/internal/domain/entity"
)

func TestImportActor(t *testing.T) {
	roster := service.NewRoster([]entity.Member{
		{ID: "kid", Role: entity.RoleDependent},
		{ID: "dad", Role: entity.RoleAdmin},
	})

	actor, err := importActor(roster, "")
	require.NoError(t, err)
	assert.Equal(t, "dad", actor.ID)

	actor, err = importActor(roster, "kid")
	require.NoError(t, err)
	assert.Equal(t, "kid", actor.ID)

	_, err = importActor(roster, "nobody")
	assert.ErrorIs(t, err, entity.ErrUnknownMember)

	_, err = importActor(service.NewRoster([]entity.Member{{ID: "kid", Role: entity.RoleDependent}}), "")
	assert.Error(t, err)
}
