package usecase_test

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aneury1/scsh-scripts/internal/domain"
	"github.com/aneury1/scsh-scripts/internal/infra/cvc"
	"github.com/aneury1/scsh-scripts/internal/infra/memstore"
	"github.com/aneury1/scsh-scripts/internal/policy"
	"github.com/aneury1/scsh-scripts/internal/queue"
	"github.com/aneury1/scsh-scripts/internal/usecase"
)

type fakeRemote struct {
	status domain.StatusCode
	blobs  [][]byte
	err    error

	gotCallback usecase.Callback
	gotRequest  []byte

	// answer, when set, computes the response from the submitted
	// request instead of the static fields.
	answer func(raw []byte) (domain.StatusCode, [][]byte, error)
}

func (f *fakeRemote) GetCACertificates(_ context.Context, cb usecase.Callback) (domain.StatusCode, [][]byte, error) {
	f.gotCallback = cb
	return f.status, f.blobs, f.err
}

func (f *fakeRemote) RequestCertificate(_ context.Context, certReq []byte, cb usecase.Callback) (domain.StatusCode, [][]byte, error) {
	f.gotCallback = cb
	f.gotRequest = certReq
	if f.answer != nil {
		return f.answer(certReq)
	}
	return f.status, f.blobs, f.err
}

type fakeSender struct {
	err error

	calls     int
	gotURL    string
	gotID     string
	gotStatus domain.StatusCode
	gotBlobs  [][]byte
}

func (f *fakeSender) SendCertificates(_ context.Context, responseURL, messageID string, status domain.StatusCode, certificates [][]byte) error {
	f.calls++
	f.gotURL = responseURL
	f.gotID = messageID
	f.gotStatus = status
	f.gotBlobs = certificates
	return f.err
}

type env struct {
	svc    *usecase.AuthorityService
	store  *memstore.Store
	issuer *cvc.Issuer
	remote *fakeRemote
	sender *fakeSender

	cvcaKey *ecdsa.PrivateKey
	dvcaKey *ecdsa.PrivateKey
	now     time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2026, 5, 12, 9, 30, 0, 0, time.UTC)
	notBefore := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	notAfter := notBefore.AddDate(2, 0, 0)

	cvcaKey := mustKey(t)
	cvca, err := cvc.SelfSignedCertificate("UTCVCA00001", cvcaKey, notBefore, notAfter)
	if err != nil {
		t.Fatalf("build cvca: %v", err)
	}
	dvcaKey := mustKey(t)
	dvca, err := cvc.IssueCertificate("UTCVCA00001", cvcaKey, "UTDVCA00001", cvc.PublicKeyInfoFor(dvcaKey), notBefore, notAfter)
	if err != nil {
		t.Fatalf("build dvca: %v", err)
	}

	store := memstore.New()
	if err := store.Insert(ctx, cvca, domain.RoleCVCA); err != nil {
		t.Fatalf("insert cvca: %v", err)
	}
	if err := store.Insert(ctx, dvca, domain.RoleDVCA); err != nil {
		t.Fatalf("insert dvca: %v", err)
	}

	issuer := cvc.NewIssuer("UTDVCA00001", dvcaKey, func() time.Time { return now })

	engine := policy.NewEngine(domain.Policy{Name: "deny"})
	if err := engine.AddRule("UTTERM*", domain.Policy{
		Name:                               "terminals",
		InitialRequestsApproved:            true,
		AuthenticatedRequestsApproved:      true,
		DeclineExpiredAuthenticatedRequest: true,
		CertificateValidity:                30 * 24 * time.Hour,
	}); err != nil {
		t.Fatalf("add rule: %v", err)
	}

	codec := cvc.Codec{}
	remote := &fakeRemote{}
	sender := &fakeSender{}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	var seq int
	svc := &usecase.AuthorityService{
		Validator: &usecase.RequestValidator{
			Codec:    codec,
			Verifier: cvc.Signer{},
			Store:    store,
		},
		Policy:      engine,
		Store:       store,
		Issuer:      issuer,
		Codec:       codec,
		Remote:      remote,
		Sender:      sender,
		Inbound:     queue.New(),
		Outbound:    queue.New(),
		CallbackURL: "https://dvca.example/v1",
		Log:         logger,
		Now:         func() time.Time { return now },
		NewMessageID: func() string {
			seq++
			return fmt.Sprintf("msg-%04d", seq)
		},
	}
	return &env{
		svc:     svc,
		store:   store,
		issuer:  issuer,
		remote:  remote,
		sender:  sender,
		cvcaKey: cvcaKey,
		dvcaKey: dvcaKey,
		now:     now,
	}
}

func TestGetCACertificatesSynchronous(t *testing.T) {
	e := newEnv(t)
	status, certs, err := e.svc.GetCACertificates(context.Background(), usecase.Callback{Indicator: domain.CallbackNotPossible})
	if err != nil {
		t.Fatalf("GetCACertificates: %v", err)
	}
	if status != domain.StatusOKCertAvailable {
		t.Fatalf("status = %s, want %s", status, domain.StatusOKCertAvailable)
	}
	if len(certs) != 2 {
		t.Fatalf("chain length = %d, want 2", len(certs))
	}
	if certs[0].CHR != "UTCVCA00001" || certs[1].CHR != "UTDVCA00001" {
		t.Fatalf("chain order = %s, %s", certs[0].CHR, certs[1].CHR)
	}
}

func TestGetCACertificatesCallbackDefers(t *testing.T) {
	e := newEnv(t)
	cb := usecase.Callback{
		Indicator:   domain.CallbackPossible,
		MessageID:   "peer-1",
		ResponseURL: "https://peer.example/v1",
	}
	status, certs, err := e.svc.GetCACertificates(context.Background(), cb)
	if err != nil {
		t.Fatalf("GetCACertificates: %v", err)
	}
	if status != domain.StatusOKSyntax {
		t.Fatalf("status = %s, want %s", status, domain.StatusOKSyntax)
	}
	if certs != nil {
		t.Fatal("deferred answer must not return certificates")
	}
	if _, ok := e.svc.Inbound.FindByMessageID("peer-1"); !ok {
		t.Fatal("expected queued inbound entry")
	}
}

func TestRequestCertificateInitialApproved(t *testing.T) {
	e := newEnv(t)
	req := buildRequest(t, "UTTERM00001", mustKey(t), "", nil)

	status, certs, err := e.svc.RequestCertificate(context.Background(), req.Raw, usecase.Callback{Indicator: domain.CallbackNotPossible})
	if err != nil {
		t.Fatalf("RequestCertificate: %v", err)
	}
	if status != domain.StatusOKCertAvailable {
		t.Fatalf("status = %s, want %s", status, domain.StatusOKCertAvailable)
	}
	// Full chain plus the freshly issued certificate.
	if len(certs) != 3 {
		t.Fatalf("certificate count = %d, want 3", len(certs))
	}
	issued := certs[2]
	if issued.CHR != "UTTERM00001" || issued.CAR != "UTDVCA00001" {
		t.Fatalf("issued cert %s under %s", issued.CHR, issued.CAR)
	}
	wantNotBefore := time.Date(2026, 5, 12, 0, 0, 0, 0, time.UTC)
	if !issued.NotBefore.Equal(wantNotBefore) {
		t.Fatalf("notBefore = %v, want %v", issued.NotBefore, wantNotBefore)
	}
	if !issued.NotAfter.Equal(wantNotBefore.Add(30 * 24 * time.Hour)) {
		t.Fatalf("notAfter = %v", issued.NotAfter)
	}
	if e.svc.Inbound.Len() != 0 {
		t.Fatalf("inbound queue length = %d, want 0", e.svc.Inbound.Len())
	}
	// Issued certificate is persisted but never part of the chain.
	if _, err := e.store.GetByHolder(context.Background(), "UTTERM00001"); err != nil {
		t.Fatalf("issued certificate not stored: %v", err)
	}
	chain, _ := e.store.Chain(context.Background())
	if len(chain) != 2 {
		t.Fatalf("chain length = %d, want 2", len(chain))
	}
}

func TestRequestCertificateDeclinedWithCallbackQueues(t *testing.T) {
	e := newEnv(t)
	// No rule matches, the default policy approves nothing.
	req := buildRequest(t, "XXTERM00001", mustKey(t), "", nil)
	cb := usecase.Callback{
		Indicator:   domain.CallbackPossible,
		MessageID:   "peer-7",
		ResponseURL: "https://peer.example/v1",
	}

	status, certs, err := e.svc.RequestCertificate(context.Background(), req.Raw, cb)
	if err != nil {
		t.Fatalf("RequestCertificate: %v", err)
	}
	if status != domain.StatusOKSyntax {
		t.Fatalf("status = %s, want %s", status, domain.StatusOKSyntax)
	}
	if len(certs) != 0 {
		t.Fatalf("certificate count = %d, want 0", len(certs))
	}
	sr, ok := e.svc.Inbound.FindByMessageID("peer-7")
	if !ok {
		t.Fatal("expected queued inbound entry")
	}
	if sr.Request == nil || sr.Request.CHR != "XXTERM00001" {
		t.Fatal("queued entry must carry the decoded request")
	}
}

func TestRequestCertificateDeclinedWithoutCallback(t *testing.T) {
	e := newEnv(t)
	req := buildRequest(t, "XXTERM00001", mustKey(t), "", nil)

	status, _, err := e.svc.RequestCertificate(context.Background(), req.Raw, usecase.Callback{Indicator: domain.CallbackNotPossible})
	if err != nil {
		t.Fatalf("RequestCertificate: %v", err)
	}
	if status != domain.StatusFailureSyncProcessing {
		t.Fatalf("status = %s, want %s", status, domain.StatusFailureSyncProcessing)
	}
	if e.svc.Inbound.Len() != 0 {
		t.Fatal("declined synchronous request must not be queued")
	}
}

func TestRequestCertificateMalformed(t *testing.T) {
	e := newEnv(t)
	status, _, err := e.svc.RequestCertificate(context.Background(), []byte("not a request"), usecase.Callback{Indicator: domain.CallbackNotPossible})
	if err != nil {
		t.Fatalf("RequestCertificate: %v", err)
	}
	if status != domain.StatusFailureSyntax {
		t.Fatalf("status = %s, want %s", status, domain.StatusFailureSyntax)
	}
}

func TestRequestCertificateAuthenticatedRenewal(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// Bootstrap the terminal with an initial request, then renew with
	// the old key authenticating the new one.
	oldKey := mustKey(t)
	first := buildRequest(t, "UTTERM00001", oldKey, "", nil)
	if status, _, err := e.svc.RequestCertificate(ctx, first.Raw, usecase.Callback{Indicator: domain.CallbackNotPossible}); err != nil || status != domain.StatusOKCertAvailable {
		t.Fatalf("bootstrap: status=%s err=%v", status, err)
	}

	renewal := buildRequest(t, "UTTERM00002", mustKey(t), "UTTERM00001", oldKey)
	status, certs, err := e.svc.RequestCertificate(ctx, renewal.Raw, usecase.Callback{Indicator: domain.CallbackNotPossible})
	if err != nil {
		t.Fatalf("RequestCertificate: %v", err)
	}
	if status != domain.StatusOKCertAvailable {
		t.Fatalf("status = %s, want %s", status, domain.StatusOKCertAvailable)
	}
	// The requester's reference is its own previous certificate, not
	// this authority's identity, so the chain is included.
	if len(certs) != 3 {
		t.Fatalf("certificate count = %d, want 3", len(certs))
	}
	if certs[2].CHR != "UTTERM00002" {
		t.Fatalf("issued cert = %s", certs[2].CHR)
	}
}

func TestProcessQueuedDeliversAndRemoves(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	cb := usecase.Callback{
		Indicator:   domain.CallbackPossible,
		MessageID:   "peer-9",
		ResponseURL: "https://peer.example/v1",
	}
	// A holder the default deny policy covers, so the request queues.
	declined := buildRequest(t, "XXTERM00001", mustKey(t), "", nil)
	if status, _, err := e.svc.RequestCertificate(ctx, declined.Raw, cb); err != nil || status != domain.StatusOKSyntax {
		t.Fatalf("queueing: status=%s err=%v", status, err)
	}

	// The operator approves by loosening the rules, then processes.
	if err := e.svc.Policy.AddRule("XXTERM*", domain.Policy{
		Name:                    "manual-approval",
		InitialRequestsApproved: true,
		CertificateValidity:     30 * 24 * time.Hour,
	}); err != nil {
		t.Fatalf("add rule: %v", err)
	}

	status, err := e.svc.ProcessQueued(ctx, "peer-9")
	if err != nil {
		t.Fatalf("ProcessQueued: %v", err)
	}
	if status != domain.StatusOKCertAvailable {
		t.Fatalf("status = %s, want %s", status, domain.StatusOKCertAvailable)
	}
	if e.sender.calls != 1 {
		t.Fatalf("sender calls = %d, want 1", e.sender.calls)
	}
	if e.sender.gotURL != "https://peer.example/v1" || e.sender.gotID != "peer-9" {
		t.Fatalf("delivery to %s id %s", e.sender.gotURL, e.sender.gotID)
	}
	if len(e.sender.gotBlobs) != 3 {
		t.Fatalf("delivered %d certificates, want 3", len(e.sender.gotBlobs))
	}
	if e.svc.Inbound.Len() != 0 {
		t.Fatal("processed entry must leave the queue")
	}
}

func TestProcessQueuedUnknownID(t *testing.T) {
	e := newEnv(t)
	status, err := e.svc.ProcessQueued(context.Background(), "nope")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if status != domain.StatusFailureMessageIDUnknown {
		t.Fatalf("status = %s, want %s", status, domain.StatusFailureMessageIDUnknown)
	}
}

func TestProcessQueuedKeepsEntryOnDeliveryFailure(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	cb := usecase.Callback{
		Indicator:   domain.CallbackPossible,
		MessageID:   "peer-3",
		ResponseURL: "https://peer.example/v1",
	}
	if status, _, err := e.svc.GetCACertificates(ctx, cb); err != nil || status != domain.StatusOKSyntax {
		t.Fatalf("queueing: status=%s err=%v", status, err)
	}

	e.sender.err = errors.New("connection refused")
	if _, err := e.svc.ProcessQueued(ctx, "peer-3"); err == nil {
		t.Fatal("expected delivery error")
	}
	if _, ok := e.svc.Inbound.FindByMessageID("peer-3"); !ok {
		t.Fatal("entry must survive a failed delivery")
	}
}

func TestDeleteQueued(t *testing.T) {
	e := newEnv(t)
	cb := usecase.Callback{
		Indicator:   domain.CallbackPossible,
		MessageID:   "peer-5",
		ResponseURL: "https://peer.example/v1",
	}
	if _, _, err := e.svc.GetCACertificates(context.Background(), cb); err != nil {
		t.Fatalf("queueing: %v", err)
	}
	if !e.svc.DeleteQueued("peer-5") {
		t.Fatal("DeleteQueued = false, want true")
	}
	if e.svc.DeleteQueued("peer-5") {
		t.Fatal("second delete must report missing entry")
	}
}
