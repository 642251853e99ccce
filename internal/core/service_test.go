package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"casetrack/internal/infra/persistence/memory"
	"casetrack/pkg/domain"
)

type staticRoles map[string][]string

func (r staticRoles) UnitsForActor(actorID string) ([]string, error) {
	return r[actorID], nil
}

var (
	admin     = Actor{ID: "admin", Role: domain.RoleStaff}
	manager   = Actor{ID: "mona", Role: domain.RoleManager}
	requester = Actor{ID: "rita", Role: domain.RoleRequester}
	outsider  = Actor{ID: "olga", Role: domain.RoleManager}
)

func testRoles() staticRoles {
	return staticRoles{
		"mona": {"012"},
		"rita": {"101"},
		"eve":  {"012"},
		"olga": {"034"},
	}
}

func testClock() Clock {
	base := time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)
	return ClockFunc(func() time.Time { return base })
}

func newTestService(t *testing.T, opts ...ServiceOption) *Service {
	t.Helper()
	store := memory.NewStore(NewDefaultRulesEngine())
	opts = append([]ServiceOption{WithClock(testClock())}, opts...)
	return NewService(store, testRoles(), opts...)
}

// seedRegisteredCase drives the workflow from request intake to a registered
// case with the given number of devices, each carrying a pending extraction.
func seedRegisteredCase(t *testing.T, svc *Service, devices int) (Case, []Extraction) {
	t.Helper()
	ctx := context.Background()

	request, _, err := svc.CreateRequest(ctx, requester, CreateRequestInput{
		RequestingUnit:       "101",
		TargetUnit:           "012",
		CrimeCategory:        "fraud",
		AuthorityName:        "District Attorney",
		ReplyEmail:           "da@example.org",
		DeviceCountRequested: devices,
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	request, _, err = svc.ReceiveRequestMaterial(ctx, manager, request.ID, request.Version, "sealed bag")
	if err != nil {
		t.Fatalf("receive material: %v", err)
	}
	c, _, err := svc.CreateCaseFromRequest(ctx, manager, request.ID, request.Version, domain.PriorityHigh)
	if err != nil {
		t.Fatalf("create case: %v", err)
	}
	for i := 0; i < devices; i++ {
		device, _, err := svc.AddDevice(ctx, manager, c.ID, AddDeviceInput{Label: "EV-" + string(rune('A'+i))})
		if err != nil {
			t.Fatalf("add device: %v", err)
		}
		if _, _, err := svc.CreateExtraction(ctx, manager, device.ID); err != nil {
			t.Fatalf("create extraction: %v", err)
		}
	}
	c, err = svc.GetCase(ctx, manager, c.ID)
	if err != nil {
		t.Fatalf("reload case: %v", err)
	}
	c, _, err = svc.CompleteCaseRegistration(ctx, manager, c.ID, c.Version)
	if err != nil {
		t.Fatalf("register case: %v", err)
	}
	extractions, err := svc.ListExtractionsByCase(ctx, manager, c.ID)
	if err != nil {
		t.Fatalf("list extractions: %v", err)
	}
	return c, extractions
}

// completeExtraction drives one extraction from pending to completed.
func completeExtraction(t *testing.T, svc *Service, extraction Extraction) Extraction {
	t.Helper()
	ctx := context.Background()
	e, _, err := svc.AssignExtraction(ctx, manager, extraction.ID, extraction.Version, "eve")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	e, _, err = svc.StartExtraction(ctx, manager, e.ID, e.Version)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	e, _, err = svc.FinishExtraction(ctx, manager, e.ID, e.Version, domain.Outcome{
		Result:       domain.ExtractionResultSuccess,
		SizeGB:       64,
		StorageMedia: "SSD-0042",
	})
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	return e
}

func TestFullWorkflowLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	c, extractions := seedRegisteredCase(t, svc, 2)

	if c.Number != "2026.012.0001" {
		t.Fatalf("case number = %q", c.Number)
	}
	if c.SequenceNumber == nil || *c.SequenceNumber != 1 {
		t.Fatalf("sequence number = %v", c.SequenceNumber)
	}
	if c.Status != domain.CaseStatusWaitingExtractor {
		t.Fatalf("registered case status = %s", c.Status)
	}
	if c.RegistrationCompletedAt == nil {
		t.Fatalf("registration timestamp missing")
	}
	if len(extractions) != 2 {
		t.Fatalf("expected 2 extractions, got %d", len(extractions))
	}

	request, err := svc.GetRequest(ctx, manager, *c.RequestID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if request.Status != domain.RequestStatusInProgress {
		t.Fatalf("linked request should be in progress, got %s", request.Status)
	}
	if request.CaseID == nil || *request.CaseID != c.ID {
		t.Fatalf("request should link back to the case")
	}

	completeExtraction(t, svc, extractions[0])

	c, err = svc.GetCase(ctx, manager, c.ID)
	if err != nil {
		t.Fatalf("get case: %v", err)
	}
	if c.Status != domain.CaseStatusInProgress {
		t.Fatalf("pending plus completed mix should derive in_progress, got %s", c.Status)
	}

	completeExtraction(t, svc, extractions[1])

	c, err = svc.GetCase(ctx, manager, c.ID)
	if err != nil {
		t.Fatalf("get case: %v", err)
	}
	if c.Status != domain.CaseStatusCompleted {
		t.Fatalf("all extractions done should derive completed, got %s", c.Status)
	}

	c, _, err = svc.FinalizeCase(ctx, manager, c.ID, c.Version, "ready for pickup")
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if c.Status != domain.CaseStatusWaitingCollection {
		t.Fatalf("finalized case status = %s", c.Status)
	}
	if c.FinishedAt == nil || c.FinishedBy != manager.ID {
		t.Fatalf("finalization stamp missing: %+v", c)
	}

	request, err = svc.GetRequest(ctx, manager, request.ID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if request.Status != domain.RequestStatusAwaitingCollection {
		t.Fatalf("finalization should cascade to the request, got %s", request.Status)
	}
}

func TestSequenceNumbersArePerUnitYear(t *testing.T) {
	svc := newTestService(t)

	first, _ := seedRegisteredCase(t, svc, 1)
	second, _ := seedRegisteredCase(t, svc, 1)

	if first.Number != "2026.012.0001" || second.Number != "2026.012.0002" {
		t.Fatalf("numbers = %q, %q", first.Number, second.Number)
	}
}

func TestScopeHidesForeignRecords(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	c, extractions := seedRegisteredCase(t, svc, 1)

	var nf *domain.NotFoundError
	if _, err := svc.GetCase(ctx, outsider, c.ID); !errors.As(err, &nf) {
		t.Fatalf("foreign case should read as not found, got %v", err)
	}
	if _, _, err := svc.FinalizeCase(ctx, outsider, c.ID, c.Version, ""); !errors.As(err, &nf) {
		t.Fatalf("foreign finalize should read as not found, got %v", err)
	}
	if _, _, err := svc.StartExtraction(ctx, outsider, extractions[0].ID, extractions[0].Version); !errors.As(err, &nf) {
		t.Fatalf("foreign extraction op should read as not found, got %v", err)
	}

	cases, err := svc.ListCases(ctx, outsider)
	if err != nil {
		t.Fatalf("list cases: %v", err)
	}
	if len(cases) != 0 {
		t.Fatalf("outsider should see no cases, got %d", len(cases))
	}

	cases, err = svc.ListCases(ctx, admin)
	if err != nil {
		t.Fatalf("list cases: %v", err)
	}
	if len(cases) != 1 {
		t.Fatalf("staff should see every case, got %d", len(cases))
	}
}

func TestVersionConflictSurfaces(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	c, extractions := seedRegisteredCase(t, svc, 1)
	completeExtraction(t, svc, extractions[0])

	c, err := svc.GetCase(ctx, manager, c.ID)
	if err != nil {
		t.Fatalf("get case: %v", err)
	}
	var conflict *domain.VersionConflictError
	if _, _, err := svc.FinalizeCase(ctx, manager, c.ID, c.Version+7, ""); !errors.As(err, &conflict) {
		t.Fatalf("stale version should conflict, got %v", err)
	}
}

func TestDeleteDeviceRecomputesCase(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	c, extractions := seedRegisteredCase(t, svc, 2)
	completeExtraction(t, svc, extractions[0])

	// Remove the untouched device; only the completed extraction remains.
	devices, err := svc.ListDevicesByCase(ctx, manager, c.ID)
	if err != nil {
		t.Fatalf("list devices: %v", err)
	}
	var target Device
	for _, device := range devices {
		for _, e := range extractions {
			if e.DeviceID == device.ID && e.ID == extractions[1].ID {
				target = device
			}
		}
	}
	if target.ID == "" {
		t.Fatalf("target device not found")
	}
	if _, err := svc.DeleteDevice(ctx, manager, target.ID, target.Version); err != nil {
		t.Fatalf("delete device: %v", err)
	}

	c, err = svc.GetCase(ctx, manager, c.ID)
	if err != nil {
		t.Fatalf("get case: %v", err)
	}
	if c.Status != domain.CaseStatusCompleted {
		t.Fatalf("remaining completed extraction should derive completed, got %s", c.Status)
	}
}

func TestDeleteCaseReleasesRequest(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	c, _ := seedRegisteredCase(t, svc, 1)
	requestID := *c.RequestID

	if _, err := svc.DeleteCase(ctx, manager, c.ID, c.Version); err != nil {
		t.Fatalf("delete case: %v", err)
	}

	var nf *domain.NotFoundError
	if _, err := svc.GetCase(ctx, admin, c.ID); !errors.As(err, &nf) {
		t.Fatalf("deleted case should be gone, got %v", err)
	}
	request, err := svc.GetRequest(ctx, manager, requestID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if request.CaseID != nil || request.Status != domain.RequestStatusMaterialReceived {
		t.Fatalf("request should return to material_received without a case: %+v", request)
	}
}

func TestUnregisteredCaseStaysDraft(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	request, _, err := svc.CreateRequest(ctx, requester, CreateRequestInput{RequestingUnit: "101", TargetUnit: "012", DeviceCountRequested: 1})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	request, _, err = svc.ReceiveRequestMaterial(ctx, manager, request.ID, request.Version, "")
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	c, _, err := svc.CreateCaseFromRequest(ctx, manager, request.ID, request.Version, "")
	if err != nil {
		t.Fatalf("create case: %v", err)
	}
	device, _, err := svc.AddDevice(ctx, manager, c.ID, AddDeviceInput{Label: "EV-A"})
	if err != nil {
		t.Fatalf("add device: %v", err)
	}
	if _, _, err := svc.CreateExtraction(ctx, manager, device.ID); err != nil {
		t.Fatalf("create extraction: %v", err)
	}

	c, err = svc.GetCase(ctx, manager, c.ID)
	if err != nil {
		t.Fatalf("get case: %v", err)
	}
	if c.Status != domain.CaseStatusDraft {
		t.Fatalf("unregistered case must stay draft, got %s", c.Status)
	}
	if c.Priority != domain.PriorityMedium {
		t.Fatalf("empty priority should default to medium, got %s", c.Priority)
	}
}

func TestRegistrationRequiresDevicesAndExtractions(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	request, _, err := svc.CreateRequest(ctx, requester, CreateRequestInput{RequestingUnit: "101", TargetUnit: "012", DeviceCountRequested: 1})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	request, _, err = svc.ReceiveRequestMaterial(ctx, manager, request.ID, request.Version, "")
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	c, _, err := svc.CreateCaseFromRequest(ctx, manager, request.ID, request.Version, domain.PriorityLow)
	if err != nil {
		t.Fatalf("create case: %v", err)
	}

	var incomplete *domain.IncompleteEntityError
	if _, _, err := svc.CompleteCaseRegistration(ctx, manager, c.ID, c.Version); !errors.As(err, &incomplete) {
		t.Fatalf("registration without devices should fail, got %v", err)
	}

	device, _, err := svc.AddDevice(ctx, manager, c.ID, AddDeviceInput{Label: "EV-A"})
	if err != nil {
		t.Fatalf("add device: %v", err)
	}
	if _, _, err := svc.CompleteCaseRegistration(ctx, manager, c.ID, c.Version); !errors.As(err, &incomplete) {
		t.Fatalf("registration without extractions should fail, got %v", err)
	}

	if _, _, err := svc.CreateExtraction(ctx, manager, device.ID); err != nil {
		t.Fatalf("create extraction: %v", err)
	}
	if _, _, err := svc.CompleteCaseRegistration(ctx, manager, c.ID, c.Version); err != nil {
		t.Fatalf("registration should now succeed: %v", err)
	}

	// A second registration is rejected.
	c, err = svc.GetCase(ctx, manager, c.ID)
	if err != nil {
		t.Fatalf("get case: %v", err)
	}
	var invalid *domain.InvalidTransitionError
	if _, _, err := svc.CompleteCaseRegistration(ctx, manager, c.ID, c.Version); !errors.As(err, &invalid) {
		t.Fatalf("double registration should fail, got %v", err)
	}
}

func TestFinalizeRequiresAllCompleted(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	c, extractions := seedRegisteredCase(t, svc, 2)
	completeExtraction(t, svc, extractions[0])

	c, err := svc.GetCase(ctx, manager, c.ID)
	if err != nil {
		t.Fatalf("get case: %v", err)
	}
	var incomplete *domain.IncompleteEntityError
	if _, _, err := svc.FinalizeCase(ctx, manager, c.ID, c.Version, ""); !errors.As(err, &incomplete) {
		t.Fatalf("finalize with pending extraction should fail, got %v", err)
	}
	if incomplete.Field != "extractions" {
		t.Fatalf("field = %q, want extractions", incomplete.Field)
	}
	if !strings.Contains(incomplete.Reason, extractions[1].ID) {
		t.Fatalf("reason should name the unfinished extraction: %q", incomplete.Reason)
	}
}

func TestFinalizedCaseRejectsNewWork(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	c, extractions := seedRegisteredCase(t, svc, 1)
	completeExtraction(t, svc, extractions[0])

	c, err := svc.GetCase(ctx, manager, c.ID)
	if err != nil {
		t.Fatalf("get case: %v", err)
	}
	c, _, err = svc.FinalizeCase(ctx, manager, c.ID, c.Version, "")
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	var invalid *domain.InvalidTransitionError
	if _, _, err := svc.AddDevice(ctx, manager, c.ID, AddDeviceInput{Label: "late"}); !errors.As(err, &invalid) {
		t.Fatalf("device on finalized case should fail, got %v", err)
	}
	if _, _, err := svc.FinalizeCase(ctx, manager, c.ID, c.Version, ""); !errors.As(err, &invalid) {
		t.Fatalf("double finalize should fail, got %v", err)
	}
}

func TestGetDeviceScopedRead(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	c, _ := seedRegisteredCase(t, svc, 1)
	devices, err := svc.ListDevicesByCase(ctx, manager, c.ID)
	if err != nil {
		t.Fatalf("list devices: %v", err)
	}
	device := devices[0]

	got, err := svc.GetDevice(ctx, manager, device.ID)
	if err != nil {
		t.Fatalf("get device: %v", err)
	}
	if got.ID != device.ID || got.CaseID != c.ID {
		t.Fatalf("device = %+v", got)
	}

	var nf *domain.NotFoundError
	if _, err := svc.GetDevice(ctx, outsider, device.ID); !errors.As(err, &nf) {
		t.Fatalf("foreign device should read as not found, got %v", err)
	}

	if _, err := svc.DeleteDevice(ctx, manager, device.ID, device.Version); err != nil {
		t.Fatalf("delete device: %v", err)
	}
	if _, err := svc.GetDevice(ctx, manager, device.ID); !errors.As(err, &nf) {
		t.Fatalf("tombstoned device should read as not found, got %v", err)
	}
}
