package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"

	ledger "github.com/teamforge/merit/internal/adapters/ledger"
	"github.com/teamforge/merit/internal/domain/model"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// replay folds an account's entries from zero and checks every balance_after.
func replay(entries []model.PointsLedgerEntry) (decimal.Decimal, bool) {
	balance := decimal.Zero
	for _, e := range entries {
		balance = balance.Add(e.Points)
		if !balance.Equal(e.BalanceAfter) {
			return balance, false
		}
	}
	return balance, true
}

func TestApply(t *testing.T) {
	Convey("Given an empty ledger store", t, func() {
		store := ledger.NewStore()
		ctx := context.Background()

		Convey("When earning points on a fresh account", func() {
			entry, err := store.Apply(ctx, "acct-a", model.ChangeEarn, dec("100"), "merit wi-1", "proj-1")
			So(err, ShouldBeNil)

			Convey("Then the entry chains from a zero balance", func() {
				So(entry.BalanceAfter.Equal(dec("100")), ShouldBeTrue)
				So(entry.ID, ShouldNotBeEmpty)
				So(entry.RelatedProjectID, ShouldEqual, "proj-1")
			})

			Convey("And the summary reflects the earn", func() {
				sum, err := store.Summary(ctx, "acct-a")
				So(err, ShouldBeNil)
				So(sum.AvailablePoints.Equal(dec("100")), ShouldBeTrue)
				So(sum.TotalPoints.Equal(dec("100")), ShouldBeTrue)
				So(sum.UsedPoints.IsZero(), ShouldBeTrue)
			})
		})

		Convey("When spending within the balance", func() {
			_, err := store.Apply(ctx, "acct-a", model.ChangeEarn, dec("100"), "seed", "")
			So(err, ShouldBeNil)
			entry, err := store.Apply(ctx, "acct-a", model.ChangeSpend, dec("-30"), "exchange", "")
			So(err, ShouldBeNil)

			Convey("Then the balance and summary update together", func() {
				So(entry.BalanceAfter.Equal(dec("70")), ShouldBeTrue)

				sum, _ := store.Summary(ctx, "acct-a")
				So(sum.AvailablePoints.Equal(dec("70")), ShouldBeTrue)
				So(sum.UsedPoints.Equal(dec("30")), ShouldBeTrue)
				// total = available + used
				So(sum.TotalPoints.Equal(sum.AvailablePoints.Add(sum.UsedPoints)), ShouldBeTrue)
			})
		})

		Convey("When a spend exceeds the available balance", func() {
			_, err := store.Apply(ctx, "acct-a", model.ChangeEarn, dec("100"), "seed", "")
			So(err, ShouldBeNil)

			_, err = store.Apply(ctx, "acct-a", model.ChangeSpend, dec("-120"), "overdraw", "")

			Convey("Then it fails with insufficient points and nothing is recorded", func() {
				So(errors.Is(err, ledger.ErrInsufficientPoints), ShouldBeTrue)

				sum, _ := store.Summary(ctx, "acct-a")
				So(sum.AvailablePoints.Equal(dec("100")), ShouldBeTrue)

				entries, _ := store.History(ctx, "acct-a")
				So(entries, ShouldHaveLength, 1)
			})
		})

		Convey("When the points sign does not match the change type", func() {
			Convey("Then a negative earn is rejected", func() {
				_, err := store.Apply(ctx, "acct-a", model.ChangeEarn, dec("-10"), "", "")
				So(errors.Is(err, ledger.ErrInvalidDelta), ShouldBeTrue)
			})
			Convey("And a positive penalty is rejected", func() {
				_, err := store.Apply(ctx, "acct-a", model.ChangePenalty, dec("10"), "", "")
				So(errors.Is(err, ledger.ErrInvalidDelta), ShouldBeTrue)
			})
			Convey("And zero points are rejected", func() {
				_, err := store.Apply(ctx, "acct-a", model.ChangeEarn, decimal.Zero, "", "")
				So(errors.Is(err, ledger.ErrInvalidDelta), ShouldBeTrue)
			})
			Convey("And an unknown change type is rejected", func() {
				_, err := store.Apply(ctx, "acct-a", model.ChangeType("gift"), dec("10"), "", "")
				So(errors.Is(err, ledger.ErrInvalidDelta), ShouldBeTrue)
			})
		})

		Convey("When looking up an unknown account", func() {
			_, err := store.Summary(ctx, "missing")
			So(errors.Is(err, ledger.ErrNotFound), ShouldBeTrue)

			_, err = store.History(ctx, "missing")
			So(errors.Is(err, ledger.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestTransfer(t *testing.T) {
	Convey("Given account A with 100 available and account B with 0", t, func() {
		store := ledger.NewStore()
		ctx := context.Background()
		_, err := store.Apply(ctx, "acct-a", model.ChangeEarn, dec("100"), "seed", "")
		So(err, ShouldBeNil)

		Convey("When transferring 50 points from A to B", func() {
			out, in, err := store.Transfer(ctx, "acct-a", "acct-b", dec("50"), "split")
			So(err, ShouldBeNil)

			Convey("Then exactly two entries are produced with correct balances", func() {
				So(out.ChangeType, ShouldEqual, model.ChangeTransferOut)
				So(out.Points.Equal(dec("-50")), ShouldBeTrue)
				So(out.BalanceAfter.Equal(dec("50")), ShouldBeTrue)

				So(in.ChangeType, ShouldEqual, model.ChangeTransferIn)
				So(in.Points.Equal(dec("50")), ShouldBeTrue)
				So(in.BalanceAfter.Equal(dec("50")), ShouldBeTrue)
			})

			Convey("And both summaries reflect the move", func() {
				a, _ := store.Summary(ctx, "acct-a")
				b, _ := store.Summary(ctx, "acct-b")
				So(a.AvailablePoints.Equal(dec("50")), ShouldBeTrue)
				So(b.AvailablePoints.Equal(dec("50")), ShouldBeTrue)
			})
		})

		Convey("When the sender cannot cover the transfer", func() {
			_, _, err := store.Transfer(ctx, "acct-a", "acct-b", dec("150"), "too much")

			Convey("Then it fails atomically and both balances are unchanged", func() {
				So(errors.Is(err, ledger.ErrInsufficientPoints), ShouldBeTrue)

				a, _ := store.Summary(ctx, "acct-a")
				So(a.AvailablePoints.Equal(dec("100")), ShouldBeTrue)

				entriesA, _ := store.History(ctx, "acct-a")
				So(entriesA, ShouldHaveLength, 1) // only the seed earn
				entriesB, _ := store.History(ctx, "acct-b")
				So(entriesB, ShouldBeEmpty)
			})
		})

		Convey("When transferring to the same account", func() {
			_, _, err := store.Transfer(ctx, "acct-a", "acct-a", dec("10"), "loop")
			So(errors.Is(err, ledger.ErrInvalidTransferTarget), ShouldBeTrue)
		})

		Convey("When transferring a non-positive amount", func() {
			_, _, err := store.Transfer(ctx, "acct-a", "acct-b", dec("-10"), "negative")
			So(errors.Is(err, ledger.ErrInvalidDelta), ShouldBeTrue)

			_, _, err = store.Transfer(ctx, "acct-a", "acct-b", decimal.Zero, "zero")
			So(errors.Is(err, ledger.ErrInvalidDelta), ShouldBeTrue)
		})
	})
}

func TestReplayLaw(t *testing.T) {
	Convey("Given an interleaving of earns, spends and transfers", t, func() {
		store := ledger.NewStore()
		ctx := context.Background()

		_, err := store.Apply(ctx, "acct-a", model.ChangeEarn, dec("40.5"), "merit", "")
		So(err, ShouldBeNil)
		_, err = store.Apply(ctx, "acct-a", model.ChangeReward, dec("9.5"), "bonus", "")
		So(err, ShouldBeNil)
		_, err = store.Apply(ctx, "acct-a", model.ChangeSpend, dec("-10"), "exchange", "")
		So(err, ShouldBeNil)
		_, _, err = store.Transfer(ctx, "acct-a", "acct-b", dec("15.25"), "share")
		So(err, ShouldBeNil)
		_, err = store.Apply(ctx, "acct-b", model.ChangePenalty, dec("-5"), "late", "")
		So(err, ShouldBeNil)
		_, err = store.Apply(ctx, "acct-b", model.ChangeRefund, dec("2"), "reversal", "")
		So(err, ShouldBeNil)

		Convey("When replaying each account's entries from zero", func() {
			for _, id := range []string{"acct-a", "acct-b"} {
				entries, err := store.History(ctx, id)
				So(err, ShouldBeNil)

				final, ok := replay(entries)
				So(ok, ShouldBeTrue)

				sum, err := store.Summary(ctx, id)
				So(err, ShouldBeNil)
				So(final.Equal(sum.AvailablePoints), ShouldBeTrue)
				So(sum.TotalPoints.Equal(sum.AvailablePoints.Add(sum.UsedPoints)), ShouldBeTrue)
			}
		})
	})
}

func TestConcurrentTransfers(t *testing.T) {
	Convey("Given opposing transfers between two accounts", t, func() {
		store := ledger.NewStore()
		ctx := context.Background()
		_, err := store.Apply(ctx, "acct-a", model.ChangeEarn, dec("1000"), "seed", "")
		So(err, ShouldBeNil)
		_, err = store.Apply(ctx, "acct-b", model.ChangeEarn, dec("1000"), "seed", "")
		So(err, ShouldBeNil)

		Convey("When running them concurrently in both directions", func() {
			const rounds = 100
			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				for i := 0; i < rounds; i++ {
					_, _, _ = store.Transfer(ctx, "acct-a", "acct-b", dec("1"), "ping")
				}
			}()
			go func() {
				defer wg.Done()
				for i := 0; i < rounds; i++ {
					_, _, _ = store.Transfer(ctx, "acct-b", "acct-a", dec("1"), "pong")
				}
			}()
			wg.Wait()

			Convey("Then no points are created or destroyed and replay still holds", func() {
				a, _ := store.Summary(ctx, "acct-a")
				b, _ := store.Summary(ctx, "acct-b")
				So(a.AvailablePoints.Add(b.AvailablePoints).Equal(dec("2000")), ShouldBeTrue)

				for _, id := range []string{"acct-a", "acct-b"} {
					entries, _ := store.History(ctx, id)
					_, ok := replay(entries)
					So(ok, ShouldBeTrue)
				}
			})
		})
	})
}

func TestDebit(t *testing.T) {
	Convey("Given the funding debit helper", t, func() {
		store := ledger.NewStore()
		ctx := context.Background()
		_, err := store.Apply(ctx, "u-1", model.ChangeEarn, dec("20"), "seed", "")
		So(err, ShouldBeNil)

		Convey("When debiting a covered amount", func() {
			So(store.Debit(ctx, "u-1", dec("5"), model.ChangeSpend, "investment"), ShouldBeNil)
			sum, _ := store.Summary(ctx, "u-1")
			So(sum.AvailablePoints.Equal(dec("15")), ShouldBeTrue)
		})

		Convey("When debiting more than is available", func() {
			err := store.Debit(ctx, "u-1", dec("25"), model.ChangeSpend, "investment")
			So(errors.Is(err, ledger.ErrInsufficientPoints), ShouldBeTrue)
		})

		Convey("When debiting a non-positive amount", func() {
			err := store.Debit(ctx, "u-1", dec("-5"), model.ChangeSpend, "investment")
			So(errors.Is(err, ledger.ErrInvalidDelta), ShouldBeTrue)
		})
	})
}

func TestApplyBatch(t *testing.T) {
	Convey("Given an empty ledger store", t, func() {
		store := ledger.NewStore()
		ctx := context.Background()

		credits := []ledger.Credit{
			{AccountID: "acct-a", Points: dec("80")},
			{AccountID: "acct-b", Points: dec("20")},
		}

		Convey("When a credit batch is applied", func() {
			entries, err := store.ApplyBatch(ctx, model.ChangeEarn, credits, "merit wi-1", "wi-1")
			So(err, ShouldBeNil)

			Convey("Then every account is credited in one operation", func() {
				So(entries, ShouldHaveLength, 2)
				a, err := store.Summary(ctx, "acct-a")
				So(err, ShouldBeNil)
				So(a.AvailablePoints.Equal(dec("80")), ShouldBeTrue)
				b, err := store.Summary(ctx, "acct-b")
				So(err, ShouldBeNil)
				So(b.AvailablePoints.Equal(dec("20")), ShouldBeTrue)
			})
		})

		Convey("When one element of the batch is invalid", func() {
			bad := append(credits, ledger.Credit{AccountID: "acct-c", Points: dec("-5")})
			_, err := store.ApplyBatch(ctx, model.ChangeEarn, bad, "merit wi-1", "wi-1")

			Convey("Then nothing is recorded for any account", func() {
				So(errors.Is(err, ledger.ErrInvalidDelta), ShouldBeTrue)
				_, err := store.Summary(ctx, "acct-a")
				So(errors.Is(err, ledger.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When the context is already canceled", func() {
			canceled, cancel := context.WithCancel(ctx)
			cancel()
			_, err := store.ApplyBatch(canceled, model.ChangeEarn, credits, "merit wi-1", "wi-1")

			Convey("Then the batch aborts before the first commit", func() {
				So(err, ShouldNotBeNil)
				_, err := store.Summary(ctx, "acct-a")
				So(errors.Is(err, ledger.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When the change type debits", func() {
			_, err := store.ApplyBatch(ctx, model.ChangeSpend, credits, "merit wi-1", "wi-1")

			Convey("Then the batch is rejected outright", func() {
				So(errors.Is(err, ledger.ErrInvalidDelta), ShouldBeTrue)
			})
		})
	})
}
