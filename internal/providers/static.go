package providers

import (
	"context"
	"encoding/json"
)

// StaticProviderID identifies the built-in fixture provider used for
// development seeding and tests.
const StaticProviderID = "static"

// StaticPayload is the whole dataset a static adapter serves, supplied
// through the credential payload under the "payload" key.
type StaticPayload struct {
	Accounts    []Account  `json:"accounts"`
	Assets      []LineItem `json:"assets"`
	Liabilities []LineItem `json:"liabilities"`
}

// StaticAdapter serves a fixed dataset. It exists so the pipeline can
// run end-to-end without any real institution.
type StaticAdapter struct {
	payload StaticPayload
}

// NewStaticAdapter builds an uninitialized static adapter.
func NewStaticAdapter() *StaticAdapter { return &StaticAdapter{} }

func (a *StaticAdapter) Initialize(_ context.Context, credentials Credentials) error {
	raw, ok := credentials["payload"]
	if !ok {
		return NewError(ScopeLinkedAccount, "static provider requires a payload credential")
	}
	if err := json.Unmarshal([]byte(raw), &a.payload); err != nil {
		return NewError(ScopeLinkedAccount, "malformed static payload: "+err.Error())
	}
	return nil
}

func (a *StaticAdapter) GetAccounts(context.Context) ([]Account, error) {
	return a.payload.Accounts, nil
}

func (a *StaticAdapter) GetAssets(context.Context) ([]LineItem, error) {
	return a.payload.Assets, nil
}

func (a *StaticAdapter) GetLiabilities(context.Context) ([]LineItem, error) {
	return a.payload.Liabilities, nil
}
