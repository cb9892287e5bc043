package payment

import (
	"context"
	"math/rand"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Gateway authorizes a charge with a payment processor.
type Gateway interface {
	Authorize(ctx context.Context, req AuthorizationRequest) (Authorization, error)
}

type AuthorizationRequest struct {
	PaymentID      uuid.UUID
	AppointmentID  uuid.UUID
	Amount         decimal.Decimal
	Currency       string
	Method         string
	IdempotencyKey string
}

// Authorization is the processor's verdict. A declined charge is not an error.
type Authorization struct {
	Approved      bool
	TransactionID string
	Reason        string
}

// SimulatedGateway approves a fixed share of charges at random.
type SimulatedGateway struct {
	mu           sync.Mutex
	rng          *rand.Rand
	approvalRate float64
}

func NewSimulatedGateway(approvalRate float64, src rand.Source) *SimulatedGateway {
	return &SimulatedGateway{
		rng:          rand.New(src),
		approvalRate: approvalRate,
	}
}

func (g *SimulatedGateway) Authorize(ctx context.Context, req AuthorizationRequest) (Authorization, error) {
	if err := ctx.Err(); err != nil {
		return Authorization{}, err
	}

	g.mu.Lock()
	roll := g.rng.Float64()
	g.mu.Unlock()

	if roll >= g.approvalRate {
		return Authorization{Approved: false, Reason: "declined by simulated processor"}, nil
	}
	return Authorization{Approved: true, TransactionID: newTransactionID()}, nil
}

// newTransactionID formats TXN- followed by eight uppercase hex characters.
func newTransactionID() string {
	return "TXN-" + strings.ToUpper(uuid.NewString()[:8])
}
