package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/teamforge/merit/internal/adapters/http/api"
	"github.com/teamforge/merit/internal/adapters/ledger"
	"github.com/teamforge/merit/internal/adapters/mq/queue"
	repository "github.com/teamforge/merit/internal/adapters/repository"
	"github.com/teamforge/merit/internal/domain/equity"
	"github.com/teamforge/merit/internal/domain/model"
)

// Mock implementations for testing
type mockDeps struct {
	seen map[string]bool

	submitErr  error
	submitted  []model.ContributionRecord
	totals     []model.ParticipantContribution
	calc       model.MeritCalculation
	calcErr    error
	saveErr    error
	finalErr   error

	editErr           error
	editedParticipant string
	investErr  error
	invest     model.SelfInvestment
	valuation  model.EntityValuation
	valErr     error
	entryErr   error
	entry      model.PointsLedgerEntry
	xferErr    error
	account    model.PointsAccount
	accountErr error
	history    []model.PointsLedgerEntry
}

func (m *mockDeps) SeenAndRecord(_ context.Context, id string) bool {
	if m.seen == nil {
		m.seen = make(map[string]bool)
	}
	if m.seen[id] {
		return true
	}
	m.seen[id] = true
	return false
}

func (m *mockDeps) Unrecord(_ context.Context, id string) {
	delete(m.seen, id)
}

func (m *mockDeps) Size() int64 { return int64(len(m.seen)) }

func (m *mockDeps) SubmitContribution(_ context.Context, rec model.ContributionRecord) error {
	if m.submitErr != nil {
		return m.submitErr
	}
	m.submitted = append(m.submitted, rec)
	return nil
}

func (m *mockDeps) GetContributionTotals(_ context.Context, _ string) ([]model.ParticipantContribution, error) {
	return m.totals, nil
}

func (m *mockDeps) GetMeritCalculation(_ context.Context, _ string) (model.MeritCalculation, error) {
	return m.calc, m.calcErr
}

func (m *mockDeps) SaveMeritCalculation(_ context.Context, _ string, _ int, _ []model.MeritParticipant) (model.MeritCalculation, error) {
	return m.calc, m.saveErr
}

func (m *mockDeps) AddMeritParticipant(_ context.Context, _, participantID string) (model.MeritCalculation, error) {
	m.editedParticipant = participantID
	return m.calc, m.editErr
}

func (m *mockDeps) RemoveMeritParticipant(_ context.Context, _, participantID string) (model.MeritCalculation, error) {
	m.editedParticipant = participantID
	return m.calc, m.editErr
}

func (m *mockDeps) FinalizeMeritCalculation(_ context.Context, _ string) (model.MeritCalculation, error) {
	return m.calc, m.finalErr
}

func (m *mockDeps) CreateSelfInvestment(_ context.Context, _ model.EntityType, _ string, _ decimal.Decimal, _ string) (model.SelfInvestment, error) {
	return m.invest, m.investErr
}

func (m *mockDeps) SetEntityValuation(_ context.Context, _ model.EntityType, _ string, _ decimal.Decimal) error {
	return m.valErr
}

func (m *mockDeps) GetEntityValuation(_ context.Context, _ model.EntityType, _ string) (model.EntityValuation, error) {
	return m.valuation, m.valErr
}

func (m *mockDeps) ApplyLedgerEntry(_ context.Context, _ string, _ model.ChangeType, _ decimal.Decimal, _, _ string) (model.PointsLedgerEntry, error) {
	return m.entry, m.entryErr
}

func (m *mockDeps) TransferPoints(_ context.Context, _, _ string, _ decimal.Decimal, _ string) (model.PointsLedgerEntry, model.PointsLedgerEntry, error) {
	return m.entry, m.entry, m.xferErr
}

func (m *mockDeps) GetAccountSummary(_ context.Context, _ string) (model.PointsAccount, error) {
	return m.account, m.accountErr
}

func (m *mockDeps) GetAccountHistory(_ context.Context, _ string) ([]model.PointsLedgerEntry, error) {
	return m.history, nil
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} { return m.stats }

func newMux(deps *mockDeps) *http.ServeMux {
	server := api.NewServer(deps, &mockStatsProvider{stats: map[string]interface{}{"started": true}})
	mux := http.NewServeMux()
	server.Register(context.Background(), mux)
	return mux
}

func doJSON(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

const validContribution = `{
	"record_id": "rec-1",
	"work_item_id": "wi-1",
	"contributor_id": "alice",
	"type": "task",
	"raw_score": 80,
	"weight": 1.0,
	"recorder_id": "recorder-1"
}`

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		mux := newMux(&mockDeps{})

		Convey("Then the health endpoint serves metrics", func() {
			w := doJSON(mux, "GET", "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("And the stats endpoint responds", func() {
			w := doJSON(mux, "GET", "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "started")
		})
	})
}

func TestContributions(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := &mockDeps{}
		mux := newMux(deps)

		Convey("When posting a valid contribution", func() {
			w := doJSON(mux, "POST", "/contributions", validContribution)

			Convey("Then it is accepted", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(deps.submitted, ShouldHaveLength, 1)
				So(deps.submitted[0].ContributorID, ShouldEqual, "alice")
			})

			Convey("And a replay reports duplicate without resubmitting", func() {
				w2 := doJSON(mux, "POST", "/contributions", validContribution)
				So(w2.Code, ShouldEqual, http.StatusOK)
				So(w2.Body.String(), ShouldContainSubstring, "duplicate")
				So(deps.submitted, ShouldHaveLength, 1)
			})
		})

		Convey("When posting a contribution with missing fields", func() {
			w := doJSON(mux, "POST", "/contributions", `{"record_id": "rec-1"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When posting malformed JSON", func() {
			w := doJSON(mux, "POST", "/contributions", "{not json")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the queue is saturated", func() {
			deps.submitErr = queue.ErrFull
			w := doJSON(mux, "POST", "/contributions", validContribution)

			Convey("Then the request is shed and the id released for retry", func() {
				So(w.Code, ShouldEqual, http.StatusTooManyRequests)
				So(deps.seen["rec-1"], ShouldBeFalse)
			})
		})

		Convey("When requesting totals", func() {
			deps.totals = []model.ParticipantContribution{
				{WorkItemID: "wi-1", ParticipantID: "alice", TotalWeightedScore: decimal.NewFromInt(80)},
			}
			w := doJSON(mux, "GET", "/contributions/wi-1", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "alice")
		})
	})
}

func TestMeritEndpoints(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := &mockDeps{
			calc: model.MeritCalculation{
				ID:         "calc-1",
				WorkItemID: "wi-1",
				Method:     model.MethodDuo,
				Revision:   2,
			},
		}
		mux := newMux(deps)

		Convey("When fetching an existing calculation", func() {
			w := doJSON(mux, "GET", "/merit/wi-1", "")
			So(w.Code, ShouldEqual, http.StatusOK)

			var calc model.MeritCalculation
			So(json.Unmarshal(w.Body.Bytes(), &calc), ShouldBeNil)
			So(calc.WorkItemID, ShouldEqual, "wi-1")
		})

		Convey("When fetching a missing calculation", func() {
			deps.calcErr = repository.ErrNotFound
			w := doJSON(mux, "GET", "/merit/wi-none", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When saving with a stale revision", func() {
			deps.saveErr = repository.ErrStaleRevision
			w := doJSON(mux, "PUT", "/merit/wi-1", `{"revision": 1, "participants": []}`)
			So(w.Code, ShouldEqual, http.StatusConflict)
			So(w.Body.String(), ShouldContainSubstring, "stale_revision")
		})

		Convey("When adding a participant", func() {
			w := doJSON(mux, "POST", "/merit/wi-1/participants", `{"participant_id": "carol"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.editedParticipant, ShouldEqual, "carol")
		})

		Convey("When adding a participant without an id", func() {
			w := doJSON(mux, "POST", "/merit/wi-1/participants", `{}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When removing a participant", func() {
			w := doJSON(mux, "DELETE", "/merit/wi-1/participants/bob", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.editedParticipant, ShouldEqual, "bob")
		})

		Convey("When removing an unknown participant", func() {
			deps.editErr = repository.ErrNotFound
			w := doJSON(mux, "DELETE", "/merit/wi-1/participants/ghost", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When finalizing", func() {
			w := doJSON(mux, "POST", "/merit/wi-1/finalize", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("When finalizing twice", func() {
			deps.finalErr = repository.ErrAlreadyFinalized
			w := doJSON(mux, "POST", "/merit/wi-1/finalize", "")
			So(w.Code, ShouldEqual, http.StatusConflict)
			So(w.Body.String(), ShouldContainSubstring, "already_finalized")
		})

		Convey("When the path has no work item id", func() {
			w := doJSON(mux, "GET", "/merit/", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestInvestments(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := &mockDeps{
			invest: model.SelfInvestment{ID: "inv-1", EntityID: "alice"},
		}
		mux := newMux(deps)

		body := `{"entity_type": "user", "entity_id": "alice", "amount": 10, "voting_round_id": "round-1"}`

		Convey("When posting a valid investment", func() {
			w := doJSON(mux, "POST", "/investments", body)
			So(w.Code, ShouldEqual, http.StatusCreated)
			So(w.Body.String(), ShouldContainSubstring, "inv-1")
		})

		Convey("When the amount is out of range", func() {
			deps.investErr = equity.ErrOutOfRange
			w := doJSON(mux, "POST", "/investments", body)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When points cannot cover the amount", func() {
			deps.investErr = equity.ErrInsufficientBalance
			w := doJSON(mux, "POST", "/investments", body)
			So(w.Code, ShouldEqual, http.StatusConflict)
		})

		Convey("When required fields are missing", func() {
			w := doJSON(mux, "POST", "/investments", `{"entity_type": "user"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestValuations(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := &mockDeps{
			valuation: model.EntityValuation{
				EntityType:       model.EntityUser,
				EntityID:         "alice",
				CurrentValuation: decimal.NewFromInt(100),
			},
		}
		mux := newMux(deps)

		Convey("When storing a valuation", func() {
			w := doJSON(mux, "PUT", "/valuations", `{"entity_type": "user", "entity_id": "alice", "valuation": 100}`)
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("When fetching a valuation", func() {
			w := doJSON(mux, "GET", "/valuations/user/alice", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "100")
		})

		Convey("When the entity path is malformed", func() {
			w := doJSON(mux, "GET", "/valuations/user", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestLedgerEndpoints(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := &mockDeps{
			entry: model.PointsLedgerEntry{ID: "entry-1", AccountID: "alice"},
		}
		mux := newMux(deps)

		Convey("When posting a valid ledger entry", func() {
			body := `{"account_id": "alice", "change_type": "earn", "points": 50, "reason": "bonus"}`
			w := doJSON(mux, "POST", "/ledger/entries", body)
			So(w.Code, ShouldEqual, http.StatusCreated)
		})

		Convey("When the entry would overdraw the account", func() {
			deps.entryErr = ledger.ErrInsufficientPoints
			body := `{"account_id": "alice", "change_type": "spend", "points": -500, "reason": "purchase"}`
			w := doJSON(mux, "POST", "/ledger/entries", body)
			So(w.Code, ShouldEqual, http.StatusConflict)
		})

		Convey("When the sign does not match the change type", func() {
			deps.entryErr = ledger.ErrInvalidDelta
			body := `{"account_id": "alice", "change_type": "earn", "points": -50, "reason": "bonus"}`
			w := doJSON(mux, "POST", "/ledger/entries", body)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When posting a valid transfer", func() {
			body := `{"from_account_id": "alice", "to_account_id": "bob", "points": 50, "reason": "gift"}`
			w := doJSON(mux, "POST", "/ledger/transfers", body)
			So(w.Code, ShouldEqual, http.StatusCreated)
			So(w.Body.String(), ShouldContainSubstring, "out")
		})

		Convey("When transferring to the same account", func() {
			deps.xferErr = ledger.ErrInvalidTransferTarget
			body := `{"from_account_id": "alice", "to_account_id": "alice", "points": 50, "reason": "gift"}`
			w := doJSON(mux, "POST", "/ledger/transfers", body)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestAccounts(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := &mockDeps{
			account: model.PointsAccount{
				UserID:          "alice",
				TotalPoints:     decimal.NewFromInt(100),
				AvailablePoints: decimal.NewFromInt(70),
				UsedPoints:      decimal.NewFromInt(30),
			},
			history: []model.PointsLedgerEntry{{ID: "entry-1", AccountID: "alice"}},
		}
		mux := newMux(deps)

		Convey("When fetching an account", func() {
			w := doJSON(mux, "GET", "/accounts/alice", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldNotContainSubstring, "history")
		})

		Convey("When fetching an account with history", func() {
			w := doJSON(mux, "GET", "/accounts/alice?history=true", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "entry-1")
		})

		Convey("When the account does not exist", func() {
			deps.accountErr = ledger.ErrNotFound
			w := doJSON(mux, "GET", "/accounts/nobody", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}
