package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jute-fleet-backend/internal/model"
)

func TestEncode(t *testing.T) {
	at := time.Date(2025, 5, 4, 12, 0, 0, 0, time.UTC)
	ev := model.Event{
		Kind: model.EventRented,
		Machine: model.Machine{
			ID:            "JRM350",
			Name:          "JRM 350",
			Owner:         "owner@example.com",
			Status:        model.StatusStopped,
			CurrentMode:   model.ModeNormal,
			RentalStatus:  model.RentalRented,
			RentalSession: &model.RentalSession{BorrowerID: "user-2"},
			Pin:           &model.Pin{Code: "654321"},
		},
		At: at,
	}

	subject, body, err := Encode("machines.events", ev)
	require.NoError(t, err)
	assert.Equal(t, "machines.events.machine.rented", subject)
	assert.NotContains(t, string(body), "654321")

	var got Payload
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, model.EventRented, got.Type)
	assert.Equal(t, "JRM350", got.MachineID)
	assert.Equal(t, "user-2", got.BorrowerID)
	assert.Equal(t, model.RentalRented, got.RentalStatus)
	assert.True(t, at.Equal(got.At))
}

func TestEncode_StopCarriesRunLog(t *testing.T) {
	ev := model.Event{
		Kind:    model.EventStopped,
		Machine: model.Machine{ID: "JSX200"},
		RunLog:  &model.RunLog{ID: "log-1"},
	}
	_, body, err := Encode("fleet", ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "machine.stopped",
		"machineId": "JSX200",
		"machineName": "",
		"owner": "",
		"status": "",
		"mode": "",
		"rentalStatus": "",
		"runLogId": "log-1",
		"at": "0001-01-01T00:00:00Z"
	}`, string(body))
}

func TestPublisher_NotConnected(t *testing.T) {
	p := &Publisher{}
	assert.Error(t, p.Publish("x", []byte("y")))
}
