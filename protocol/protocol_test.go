package protocol

import (
	"context"
	"testing"
	"time"

	"github.com/Storj/core/channel"
	"github.com/Storj/core/contract"
	"github.com/Storj/core/crypto"
	"github.com/Storj/core/storage"
)

func testKeyPair(t *testing.T) *crypto.KeyPair {
	t.Helper()
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	return kp
}

func newTestHandler() *Handler {
	adapter := storage.NewShardManager(storage.NewMemory(), 0)
	return NewHandler(NewPendingContracts(), channel.NewTokenStore(), adapter)
}

func TestMarketPublishSubscribe(t *testing.T) {
	m := NewMarket()
	topic := NewTopic('O', 1, 1)
	ch, unsub := m.Subscribe(topic)
	defer unsub()

	m.Publish(Publication{Topic: topic, Contract: []byte("offer-1")})

	select {
	case pub := <-ch:
		if string(pub.Contract) != "offer-1" {
			t.Fatalf("got %q", pub.Contract)
		}
	case <-time.After(time.Second):
		t.Fatal("expected publication to be delivered")
	}
}

func TestMarketDoesNotDeliverToOtherTopics(t *testing.T) {
	m := NewMarket()
	ch, unsub := m.Subscribe(NewTopic('O', 1, 1))
	defer unsub()

	m.Publish(Publication{Topic: NewTopic('O', 2, 2), Contract: []byte("irrelevant")})

	select {
	case pub := <-ch:
		t.Fatalf("unexpected delivery: %v", pub)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestOfferFirstWinsRace(t *testing.T) {
	renter := testKeyPair(t)
	farmerA := testKeyPair(t)
	farmerB := testKeyPair(t)

	h := newTestHandler()

	c, err := contract.New(renter.NodeID, 11, crypto.H([]byte("hello storj")), 0, 10000, 12, "dest", 100)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Sign(renter, contract.RoleRenter); err != nil {
		t.Fatal(err)
	}
	h.Pending.Publish(c.DataHash, c)

	offerA := cloneForFarmer(t, c, farmerA)
	offerB := cloneForFarmer(t, c, farmerB)

	if _, err := h.HandleOffer(OfferRequest{Contract: offerA}); err != nil {
		t.Fatalf("first offer should be accepted: %v", err)
	}
	if _, err := h.HandleOffer(OfferRequest{Contract: offerB}); err != ErrAlreadyMatched {
		t.Fatalf("expected ErrAlreadyMatched for the second offer, got %v", err)
	}
}

// cloneForFarmer re-derives the same economic contract and farmer-signs
// it under kp, simulating a farmer's OFFER.
func cloneForFarmer(t *testing.T, renterSigned *contract.Contract, kp *crypto.KeyPair) *contract.Contract {
	t.Helper()
	c := *renterSigned
	if err := c.Sign(kp, contract.RoleFarmer); err != nil {
		t.Fatal(err)
	}
	return &c
}

func TestConsignRetrieveIssueTokens(t *testing.T) {
	h := newTestHandler()
	ctx := context.Background()
	farmer := testKeyPair(t)

	dataHash := crypto.H([]byte("shard bytes"))
	contractID := crypto.H([]byte("contract-1"))

	consignResp, err := h.HandleConsign(ctx, ConsignRequest{ContractID: contractID, AuditTree: []crypto.Hash{dataHash}}, dataHash, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if consignResp.Token == "" {
		t.Fatal("expected a non-empty push token")
	}

	item := storage.NewItem(dataHash)
	item.Contracts[farmer.NodeID.String()] = &contract.Contract{}
	if err := h.Adapter.Put(ctx, dataHash.String(), item, nil, 0); err != nil {
		t.Fatal(err)
	}

	retrieveResp, err := h.HandleRetrieve(ctx, RetrieveRequest{DataHash: dataHash}, farmer.NodeID, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if retrieveResp.Token == "" {
		t.Fatal("expected a non-empty pull token")
	}
	if retrieveResp.Token == consignResp.Token {
		t.Fatal("expected distinct tokens for the push and pull grants")
	}
}

func TestRetrieveRejectsUnknownContract(t *testing.T) {
	h := newTestHandler()
	ctx := context.Background()
	farmer := testKeyPair(t)
	dataHash := crypto.H([]byte("shard bytes"))

	if err := h.Adapter.Put(ctx, dataHash.String(), storage.NewItem(dataHash), nil, 0); err != nil {
		t.Fatal(err)
	}

	if _, err := h.HandleRetrieve(ctx, RetrieveRequest{DataHash: dataHash}, farmer.NodeID, time.Minute); err == nil {
		t.Fatal("expected retrieve without a contract on file to fail")
	}
}
