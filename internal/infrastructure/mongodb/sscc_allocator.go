package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pharmatrace/traceability-service/internal/gs1"
)

// SSCCAllocator issues serial shipping container codes from a monotonic
// counter document. Serial references are never reused; an unpacked
// container's code stays retired forever.
type SSCCAllocator struct {
	counters       *mongo.Collection
	extensionDigit string
	companyPrefix  string
	serialWidth    int
}

// NewSSCCAllocator creates an allocator for the given GS1 company prefix.
// The serial reference width is whatever the 17-digit SSCC body leaves after
// the extension digit and the prefix.
func NewSSCCAllocator(db *mongo.Database, extensionDigit, companyPrefix string) (*SSCCAllocator, error) {
	serialWidth := gs1.SSCCLength - 1 - len(extensionDigit) - len(companyPrefix)
	if serialWidth <= 0 {
		return nil, fmt.Errorf("company prefix %q leaves no room for a serial reference", companyPrefix)
	}
	return &SSCCAllocator{
		counters:       db.Collection("counters"),
		extensionDigit: extensionDigit,
		companyPrefix:  companyPrefix,
		serialWidth:    serialWidth,
	}, nil
}

// NextSSCC atomically increments the sequence and renders the next code
func (a *SSCCAllocator) NextSSCC(ctx context.Context) (string, error) {
	filter := bson.M{"_id": "sscc"}
	update := bson.M{"$inc": bson.M{"seq": int64(1)}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var counter struct {
		Seq int64 `bson:"seq"`
	}
	if err := a.counters.FindOneAndUpdate(ctx, filter, update, opts).Decode(&counter); err != nil {
		return "", fmt.Errorf("next sscc sequence: %w", err)
	}

	serial := fmt.Sprintf("%0*d", a.serialWidth, counter.Seq)
	if len(serial) > a.serialWidth {
		return "", fmt.Errorf("sscc sequence exhausted at %d", counter.Seq)
	}
	return gs1.BuildSSCC(a.extensionDigit, a.companyPrefix, serial)
}
