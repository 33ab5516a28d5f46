package approval

import (
	"context"

	"treasuryagent/internal/backend/statechannel"
)

type fakeChannel struct{}

func (f *fakeChannel) AuthRequest(ctx context.Context, signerAddress string) (statechannel.AuthChallenge, error) {
	return statechannel.AuthChallenge{}, nil
}

func (f *fakeChannel) AuthVerify(ctx context.Context, signerAddress string, signature []byte) error {
	return nil
}

func (f *fakeChannel) CreateAppSession(ctx context.Context, docID string, participants []string, definition []byte) (statechannel.AppSession, error) {
	return statechannel.AppSession{}, nil
}

func (f *fakeChannel) SubmitAppState(ctx context.Context, docID, sessionID string, version uint64, statePayload []byte, coSignatures map[string][]byte) (statechannel.AppSession, error) {
	return statechannel.AppSession{SessionID: sessionID, Version: version}, nil
}

func (f *fakeChannel) CloseAppSession(ctx context.Context, docID, sessionID string) error {
	return nil
}

func (f *fakeChannel) GetSessionStatus(ctx context.Context, docID, sessionID string) (statechannel.AppSession, error) {
	return statechannel.AppSession{}, nil
}

var _ statechannel.Backend = (*fakeChannel)(nil)
