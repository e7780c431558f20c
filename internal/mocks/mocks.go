// Package mocks provides testify mocks for the service's seams.
package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"telemed-chat/internal/auth"
	"telemed-chat/internal/blob"
	"telemed-chat/internal/models"
	"telemed-chat/internal/store"
)

type MessageStoreMock struct {
	mock.Mock
}

func (m *MessageStoreMock) Create(ctx context.Context, msg models.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MessageStoreMock) Get(ctx context.Context, roomID, messageID string) (models.Message, error) {
	args := m.Called(ctx, roomID, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageStoreMock) Update(ctx context.Context, roomID, messageID string, fields store.Fields) error {
	args := m.Called(ctx, roomID, messageID, fields)
	return args.Error(0)
}

func (m *MessageStoreMock) ListBefore(ctx context.Context, roomID, beforeID string, limit int) ([]models.Message, error) {
	args := m.Called(ctx, roomID, beforeID, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageStoreMock) ListRoom(ctx context.Context, roomID string) ([]models.Message, error) {
	args := m.Called(ctx, roomID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

type BlobStoreMock struct {
	mock.Mock
}

func (m *BlobStoreMock) Save(ctx context.Context, roomID, fileName, contentType string, r io.Reader, size int64) (blob.Stored, error) {
	args := m.Called(ctx, roomID, fileName, contentType, r, size)
	var stored blob.Stored
	if val := args.Get(0); val != nil {
		stored = val.(blob.Stored)
	}
	return stored, args.Error(1)
}

func (m *BlobStoreMock) Open(key string) (io.ReadSeekCloser, error) {
	args := m.Called(key)
	var f io.ReadSeekCloser
	if val := args.Get(0); val != nil {
		f = val.(io.ReadSeekCloser)
	}
	return f, args.Error(1)
}

func (m *BlobStoreMock) VerifyURL(key, expiry, signature string) bool {
	args := m.Called(key, expiry, signature)
	return args.Bool(0)
}

type VerifierMock struct {
	mock.Mock
}

func (m *VerifierMock) Verify(ctx context.Context, token string) (auth.Identity, error) {
	args := m.Called(ctx, token)
	var identity auth.Identity
	if val := args.Get(0); val != nil {
		identity = val.(auth.Identity)
	}
	return identity, args.Error(1)
}

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}
