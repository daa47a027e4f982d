package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/emi-engine/internal/config"
	"github.com/segyhp/emi-engine/internal/domain"
	"github.com/segyhp/emi-engine/internal/mocks"
	"github.com/segyhp/emi-engine/internal/repository"
	customError "github.com/segyhp/emi-engine/pkg/errors"
)

var fixedNow = time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	return &config.Config{
		Business: config.BusinessConfig{
			MinInstallments:    3,
			MaxInstallments:    24,
			ReminderWindowDays: 7,
			MaxAdvanceRetries:  3,
			Currency:           "INR",
		},
		Notification: config.NotificationConfig{Timeout: time.Second},
	}
}

func newTestEMIService(repo repository.AgreementRepository, catalog CourseCatalog, notifier Notifier) *EMIService {
	s := NewEMIService(repo, catalog, notifier, testConfig(), nil)
	s.now = func() time.Time { return fixedNow }
	return s
}

func openCatalog() *mocks.MockCourseCatalog {
	catalog := &mocks.MockCourseCatalog{}
	catalog.On("GetCourseEMIPolicy", mock.Anything, "course-1").Return(&domain.CourseEMIPolicy{
		CourseID:             "course-1",
		Title:                "Go Fundamentals",
		Enabled:              true,
		Price:                decimal.NewFromInt(12000),
		MinInstallments:      3,
		MaxInstallments:      12,
		ProcessingFeePercent: decimal.NewFromFloat(2.5),
	}, nil).Maybe()
	return catalog
}

func quietNotifier() *mocks.MockNotifier {
	notifier := &mocks.MockNotifier{}
	notifier.On("SendNotification", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	return notifier
}

func activeAgreement(remaining int) *domain.Agreement {
	due := fixedNow.AddDate(0, 0, 3)
	id := uuid.New()
	return &domain.Agreement{
		ID:                       id,
		UserID:                   "user-1",
		CourseID:                 "course-1",
		OriginatingTransactionID: "txn-0",
		TotalAmount:              decimal.NewFromInt(6000),
		InstallmentAmount:        decimal.NewFromInt(1000),
		TotalInstallments:        6,
		InstallmentsRemaining:    remaining,
		NextDueDate:              &due,
		Status:                   domain.AgreementStatusActive,
		Payments: []domain.PaymentEvent{{
			ID:            uuid.New(),
			AgreementID:   id,
			PaidAt:        fixedNow.AddDate(0, -1, 0),
			Amount:        decimal.NewFromInt(1000),
			TransactionID: "txn-0",
			Outcome:       domain.PaymentOutcomeSuccess,
		}},
	}
}

func TestCreateFromPayment_Success(t *testing.T) {
	// Arrange
	mockRepo := &mocks.MockAgreementRepository{}
	mockNotifier := &mocks.MockNotifier{}
	service := newTestEMIService(mockRepo, openCatalog(), mockNotifier)

	mockRepo.On("FindByUserCourseTxn", mock.Anything, "user-1", "course-1", "txn-1").Return(nil, sql.ErrNoRows)
	mockRepo.On("FindOpenByUserCourse", mock.Anything, "user-1", "course-1").Return(nil, sql.ErrNoRows)
	mockRepo.On("Create", mock.Anything, mock.MatchedBy(func(a *domain.Agreement) bool {
		return a.OriginatingTransactionID == "txn-1" && len(a.Payments) == 1
	})).Return(nil)
	mockNotifier.On("SendNotification", mock.Anything, "user-1", domain.TemplateEMICreated, mock.Anything).Return(nil)

	// Act
	agreement, err := service.CreateFromPayment(context.Background(), domain.NewAgreementTerms{
		UserID:            "user-1",
		CourseID:          "course-1",
		TransactionID:     "txn-1",
		InstallmentCount:  6,
		InstallmentAmount: decimal.NewFromInt(1000),
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 5, agreement.InstallmentsRemaining)
	assert.Equal(t, 6, agreement.TotalInstallments)
	assert.Equal(t, domain.AgreementStatusActive, agreement.Status)
	require.NotNil(t, agreement.NextDueDate)
	// one calendar month from Jan 31 clamps to the end of February
	assert.Equal(t, time.Date(2024, 2, 29, 10, 0, 0, 0, time.UTC), *agreement.NextDueDate)
	assert.True(t, agreement.TotalAmount.Equal(decimal.NewFromInt(6000)))
	assert.True(t, agreement.ProcessingFee.Equal(decimal.NewFromInt(300)), "got %s", agreement.ProcessingFee)

	require.Len(t, agreement.Payments, 1)
	assert.Equal(t, domain.PaymentOutcomeSuccess, agreement.Payments[0].Outcome)
	assert.True(t, agreement.Payments[0].Amount.Equal(decimal.NewFromInt(1300)))

	mockRepo.AssertExpectations(t)
	mockNotifier.AssertExpectations(t)
}

func TestCreateFromPayment_InvalidTerms(t *testing.T) {
	optionPolicy := &domain.CourseEMIPolicy{
		CourseID:                 "course-opt",
		Enabled:                  true,
		Price:                    decimal.NewFromInt(12000),
		MinInstallments:          6,
		MaxInstallments:          12,
		MinimumInstallmentAmount: decimal.NewFromInt(100),
		Options: []domain.EMIOption{
			{Months: 6, MonthlyAmount: decimal.NewFromInt(2000)},
			{Months: 12, MonthlyAmount: decimal.NewFromInt(1000)},
		},
	}
	noMinimumPolicy := &domain.CourseEMIPolicy{
		CourseID:        "course-free",
		Enabled:         true,
		MinInstallments: 3,
		MaxInstallments: 12,
	}
	disabledPolicy := &domain.CourseEMIPolicy{CourseID: "course-off", Enabled: false}

	tests := []struct {
		name   string
		policy *domain.CourseEMIPolicy
		count  int
		amount decimal.Decimal
	}{
		{name: "amount does not match a configured option", policy: optionPolicy, count: 12, amount: decimal.NewFromInt(1800)},
		{name: "count below range", policy: optionPolicy, count: 3, amount: decimal.NewFromInt(2000)},
		{name: "count above range", policy: optionPolicy, count: 18, amount: decimal.NewFromInt(1000)},
		{name: "amount below course minimum", policy: optionPolicy, count: 6, amount: decimal.NewFromInt(50)},
		{name: "amount below fallback minimum", policy: noMinimumPolicy, count: 6, amount: decimal.NewFromFloat(0.5)},
		{name: "emi disabled", policy: disabledPolicy, count: 6, amount: decimal.NewFromInt(1000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := &mocks.MockAgreementRepository{}
			catalog := &mocks.MockCourseCatalog{}
			catalog.On("GetCourseEMIPolicy", mock.Anything, tt.policy.CourseID).Return(tt.policy, nil)
			service := newTestEMIService(mockRepo, catalog, quietNotifier())

			agreement, err := service.CreateFromPayment(context.Background(), domain.NewAgreementTerms{
				UserID:            "user-1",
				CourseID:          tt.policy.CourseID,
				TransactionID:     "txn-1",
				InstallmentCount:  tt.count,
				InstallmentAmount: tt.amount,
			})

			assert.Nil(t, agreement)
			assert.True(t, errors.Is(err, customError.ErrInvalidEMITerms), "got %v", err)
			mockRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateFromPayment_AcceptsConfiguredOption(t *testing.T) {
	mockRepo := &mocks.MockAgreementRepository{}
	catalog := &mocks.MockCourseCatalog{}
	catalog.On("GetCourseEMIPolicy", mock.Anything, "course-opt").Return(&domain.CourseEMIPolicy{
		CourseID:                 "course-opt",
		Enabled:                  true,
		MinInstallments:          6,
		MaxInstallments:          12,
		MinimumInstallmentAmount: decimal.NewFromInt(100),
		Options:                  []domain.EMIOption{{Months: 6, MonthlyAmount: decimal.NewFromInt(2000)}},
	}, nil)
	service := newTestEMIService(mockRepo, catalog, quietNotifier())

	mockRepo.On("FindByUserCourseTxn", mock.Anything, "user-1", "course-opt", "txn-1").Return(nil, sql.ErrNoRows)
	mockRepo.On("FindOpenByUserCourse", mock.Anything, "user-1", "course-opt").Return(nil, sql.ErrNoRows)
	mockRepo.On("Create", mock.Anything, mock.Anything).Return(nil)

	agreement, err := service.CreateFromPayment(context.Background(), domain.NewAgreementTerms{
		UserID:            "user-1",
		CourseID:          "course-opt",
		TransactionID:     "txn-1",
		InstallmentCount:  6,
		InstallmentAmount: decimal.NewFromInt(2000),
		ProcessingFee:     decimal.NewFromInt(99),
	})

	require.NoError(t, err)
	assert.True(t, agreement.ProcessingFee.Equal(decimal.NewFromInt(99)))
}

func TestCreateFromPayment_Duplicates(t *testing.T) {
	terms := domain.NewAgreementTerms{
		UserID:            "user-1",
		CourseID:          "course-1",
		TransactionID:     "txn-1",
		InstallmentCount:  6,
		InstallmentAmount: decimal.NewFromInt(1000),
	}

	tests := []struct {
		name       string
		setupMocks func(repo *mocks.MockAgreementRepository)
	}{
		{
			name: "same transaction already created an agreement",
			setupMocks: func(repo *mocks.MockAgreementRepository) {
				repo.On("FindByUserCourseTxn", mock.Anything, "user-1", "course-1", "txn-1").Return(activeAgreement(5), nil)
			},
		},
		{
			name: "an open agreement exists for the course",
			setupMocks: func(repo *mocks.MockAgreementRepository) {
				repo.On("FindByUserCourseTxn", mock.Anything, "user-1", "course-1", "txn-1").Return(nil, sql.ErrNoRows)
				repo.On("FindOpenByUserCourse", mock.Anything, "user-1", "course-1").Return(activeAgreement(3), nil)
			},
		},
		{
			name: "unique key violated on insert",
			setupMocks: func(repo *mocks.MockAgreementRepository) {
				repo.On("FindByUserCourseTxn", mock.Anything, "user-1", "course-1", "txn-1").Return(nil, sql.ErrNoRows)
				repo.On("FindOpenByUserCourse", mock.Anything, "user-1", "course-1").Return(nil, sql.ErrNoRows)
				repo.On("Create", mock.Anything, mock.Anything).Return(customError.ErrDuplicateAgreement)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := &mocks.MockAgreementRepository{}
			tt.setupMocks(mockRepo)
			service := newTestEMIService(mockRepo, openCatalog(), quietNotifier())

			agreement, err := service.CreateFromPayment(context.Background(), terms)

			assert.Nil(t, agreement)
			assert.True(t, errors.Is(err, customError.ErrDuplicateAgreement), "got %v", err)
			assert.Equal(t, customError.ErrCodeDuplicateAgreement, customError.Code(err))
		})
	}
}

func TestCreateFromPayment_NotificationFailureIsIgnored(t *testing.T) {
	mockRepo := &mocks.MockAgreementRepository{}
	mockNotifier := &mocks.MockNotifier{}
	service := newTestEMIService(mockRepo, openCatalog(), mockNotifier)

	mockRepo.On("FindByUserCourseTxn", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, sql.ErrNoRows)
	mockRepo.On("FindOpenByUserCourse", mock.Anything, mock.Anything, mock.Anything).Return(nil, sql.ErrNoRows)
	mockRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	mockNotifier.On("SendNotification", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("smtp down"))

	agreement, err := service.CreateFromPayment(context.Background(), domain.NewAgreementTerms{
		UserID:            "user-1",
		CourseID:          "course-1",
		TransactionID:     "txn-1",
		InstallmentCount:  6,
		InstallmentAmount: decimal.NewFromInt(1000),
	})

	require.NoError(t, err)
	assert.Equal(t, domain.AgreementStatusActive, agreement.Status)
}

func TestReconcilePayment_CompletesOnLastInstallment(t *testing.T) {
	mockRepo := &mocks.MockAgreementRepository{}
	mockNotifier := &mocks.MockNotifier{}
	service := newTestEMIService(mockRepo, openCatalog(), mockNotifier)

	agreement := activeAgreement(1)
	mockRepo.On("FindOpenByUserCourse", mock.Anything, "user-1", "course-1").Return(agreement, nil)
	mockRepo.On("ApplyAdvance", mock.Anything, mock.MatchedBy(func(adv domain.Advance) bool {
		return adv.ExpectedRemaining == 1 &&
			adv.NewRemaining == 0 &&
			adv.NewStatus == domain.AgreementStatusCompleted &&
			adv.NewNextDueDate == nil &&
			adv.Event.TransactionID == "txn-9"
	})).Return(nil)
	mockNotifier.On("SendNotification", mock.Anything, "user-1", domain.TemplateEMICompleted, mock.Anything).Return(nil)

	result, err := service.ReconcilePayment(context.Background(), "user-1", "course-1", "txn-9", decimal.Zero)

	require.NoError(t, err)
	assert.Equal(t, 0, result.InstallmentsRemaining)
	assert.Equal(t, domain.AgreementStatusCompleted, result.Status)
	assert.Nil(t, result.NextDueDate)
	assert.True(t, result.HasProcessed("txn-9"))
	mockRepo.AssertExpectations(t)
	mockNotifier.AssertExpectations(t)
}

func TestReconcilePayment_OverdueReturnsToActive(t *testing.T) {
	mockRepo := &mocks.MockAgreementRepository{}
	service := newTestEMIService(mockRepo, openCatalog(), quietNotifier())

	agreement := activeAgreement(3)
	agreement.Status = domain.AgreementStatusOverdue
	mockRepo.On("FindOpenByUserCourse", mock.Anything, "user-1", "course-1").Return(agreement, nil)
	mockRepo.On("ApplyAdvance", mock.Anything, mock.MatchedBy(func(adv domain.Advance) bool {
		return adv.NewStatus == domain.AgreementStatusActive && adv.NewRemaining == 2
	})).Return(nil)

	result, err := service.ReconcilePayment(context.Background(), "user-1", "course-1", "txn-9", decimal.NewFromInt(1000))

	require.NoError(t, err)
	assert.Equal(t, domain.AgreementStatusActive, result.Status)
	assert.Equal(t, 2, result.InstallmentsRemaining)
	require.NotNil(t, result.NextDueDate)
	assert.Equal(t, time.Date(2024, 2, 29, 10, 0, 0, 0, time.UTC), *result.NextDueDate)
}

func TestReconcilePayment_ReplayDoesNotAdvance(t *testing.T) {
	mockRepo := &mocks.MockAgreementRepository{}
	service := newTestEMIService(mockRepo, openCatalog(), quietNotifier())

	agreement := activeAgreement(4)
	before := *agreement.NextDueDate
	mockRepo.On("FindOpenByUserCourse", mock.Anything, "user-1", "course-1").Return(agreement, nil)

	result, err := service.ReconcilePayment(context.Background(), "user-1", "course-1", "txn-0", decimal.Zero)

	assert.True(t, errors.Is(err, customError.ErrAlreadyProcessed))
	assert.Equal(t, 4, result.InstallmentsRemaining)
	assert.Equal(t, before, *result.NextDueDate)
	mockRepo.AssertNotCalled(t, "ApplyAdvance", mock.Anything, mock.Anything)
}

func TestReconcilePayment_RetriesAfterConflict(t *testing.T) {
	mockRepo := &mocks.MockAgreementRepository{}
	service := newTestEMIService(mockRepo, openCatalog(), quietNotifier())

	stale := activeAgreement(4)
	fresh := activeAgreement(3)
	fresh.ID = stale.ID

	mockRepo.On("FindOpenByUserCourse", mock.Anything, "user-1", "course-1").Return(stale, nil).Once()
	mockRepo.On("FindOpenByUserCourse", mock.Anything, "user-1", "course-1").Return(fresh, nil).Once()
	mockRepo.On("ApplyAdvance", mock.Anything, mock.MatchedBy(func(adv domain.Advance) bool {
		return adv.ExpectedRemaining == 4
	})).Return(customError.ErrConcurrentUpdate).Once()
	mockRepo.On("ApplyAdvance", mock.Anything, mock.MatchedBy(func(adv domain.Advance) bool {
		return adv.ExpectedRemaining == 3 && adv.NewRemaining == 2
	})).Return(nil).Once()

	result, err := service.ReconcilePayment(context.Background(), "user-1", "course-1", "txn-9", decimal.Zero)

	require.NoError(t, err)
	assert.Equal(t, 2, result.InstallmentsRemaining)
	mockRepo.AssertExpectations(t)
}

func TestReconcilePayment_GivesUpAfterMaxRetries(t *testing.T) {
	mockRepo := &mocks.MockAgreementRepository{}
	service := newTestEMIService(mockRepo, openCatalog(), quietNotifier())

	mockRepo.On("FindOpenByUserCourse", mock.Anything, "user-1", "course-1").Return(activeAgreement(4), nil)
	mockRepo.On("ApplyAdvance", mock.Anything, mock.Anything).Return(customError.ErrConcurrentUpdate)

	result, err := service.ReconcilePayment(context.Background(), "user-1", "course-1", "txn-9", decimal.Zero)

	assert.Nil(t, result)
	assert.True(t, errors.Is(err, customError.ErrConcurrentUpdate))
	assert.Equal(t, customError.ErrCodeConcurrentUpdateConflict, customError.Code(err))
	mockRepo.AssertNumberOfCalls(t, "ApplyAdvance", 3)
}

func TestReconcilePayment_Failures(t *testing.T) {
	tests := []struct {
		name        string
		setupMocks  func(repo *mocks.MockAgreementRepository)
		amount      decimal.Decimal
		expectedErr error
	}{
		{
			name: "no open agreement",
			setupMocks: func(repo *mocks.MockAgreementRepository) {
				repo.On("FindOpenByUserCourse", mock.Anything, "user-1", "course-1").Return(nil, sql.ErrNoRows)
			},
			expectedErr: customError.ErrNoActiveAgreement,
		},
		{
			name: "amount below installment",
			setupMocks: func(repo *mocks.MockAgreementRepository) {
				repo.On("FindOpenByUserCourse", mock.Anything, "user-1", "course-1").Return(activeAgreement(4), nil)
			},
			amount:      decimal.NewFromInt(500),
			expectedErr: customError.ErrPaymentAmountMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := &mocks.MockAgreementRepository{}
			tt.setupMocks(mockRepo)
			service := newTestEMIService(mockRepo, openCatalog(), quietNotifier())

			result, err := service.ReconcilePayment(context.Background(), "user-1", "course-1", "txn-9", tt.amount)

			assert.Nil(t, result)
			assert.True(t, errors.Is(err, tt.expectedErr), "got %v", err)
			mockRepo.AssertNotCalled(t, "ApplyAdvance", mock.Anything, mock.Anything)
		})
	}
}

func TestReconcilePayment_MonotonicUnderConcurrency(t *testing.T) {
	agreement := activeAgreement(10)
	repo := newMemoryAgreementRepository(agreement)
	service := newTestEMIService(repo, openCatalog(), quietNotifier())
	service.config.Business.MaxAdvanceRetries = 50

	const workers = 6
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = service.ReconcilePayment(context.Background(), "user-1", "course-1", fmt.Sprintf("txn-%d", i+1), decimal.Zero)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	stored, err := repo.GetByID(context.Background(), agreement.ID)
	require.NoError(t, err)
	assert.Equal(t, 10-workers, stored.InstallmentsRemaining)
	assert.Len(t, stored.Payments, 1+workers)

	// replaying every transaction changes nothing
	for i := 0; i < workers; i++ {
		_, err := service.ReconcilePayment(context.Background(), "user-1", "course-1", fmt.Sprintf("txn-%d", i+1), decimal.Zero)
		assert.True(t, errors.Is(err, customError.ErrAlreadyProcessed))
	}
	stored, err = repo.GetByID(context.Background(), agreement.ID)
	require.NoError(t, err)
	assert.Equal(t, 10-workers, stored.InstallmentsRemaining)
}

func TestReconcilePayment_CompletionClosure(t *testing.T) {
	agreement := activeAgreement(3)
	repo := newMemoryAgreementRepository(agreement)
	service := newTestEMIService(repo, openCatalog(), quietNotifier())

	previous := agreement.InstallmentsRemaining
	for i := 1; i <= 3; i++ {
		result, err := service.ReconcilePayment(context.Background(), "user-1", "course-1", fmt.Sprintf("txn-%d", i), decimal.Zero)
		require.NoError(t, err)

		assert.Equal(t, previous-1, result.InstallmentsRemaining)
		previous = result.InstallmentsRemaining

		done := result.InstallmentsRemaining == 0
		assert.Equal(t, done, result.Status == domain.AgreementStatusCompleted)
		assert.Equal(t, done, result.NextDueDate == nil)
	}

	_, err := service.ReconcilePayment(context.Background(), "user-1", "course-1", "txn-4", decimal.Zero)
	assert.True(t, errors.Is(err, customError.ErrNoActiveAgreement))
}

func TestEvaluateDueDate(t *testing.T) {
	today := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		due := today.Add(d)
		return &due
	}
	day := 24 * time.Hour

	tests := []struct {
		name     string
		due      *time.Time
		expected DueDecision
	}{
		{name: "five days ahead reminds", due: at(5 * day), expected: DueDecision{Action: DueActionRemind, DaysLeft: 5}},
		{name: "edge of window reminds", due: at(7 * day), expected: DueDecision{Action: DueActionRemind, DaysLeft: 7}},
		{name: "outside window", due: at(8 * day), expected: DueDecision{Action: DueActionNone, DaysLeft: 8}},
		{name: "partial day rounds up into window", due: at(6*day + time.Hour), expected: DueDecision{Action: DueActionRemind, DaysLeft: 7}},
		{name: "due today does nothing", due: at(0), expected: DueDecision{Action: DueActionNone, DaysLeft: 0}},
		{name: "due earlier today does nothing", due: at(-3 * time.Hour), expected: DueDecision{Action: DueActionNone, DaysLeft: 0}},
		{name: "two days past marks overdue", due: at(-2 * day), expected: DueDecision{Action: DueActionMarkOverdue, DaysLeft: -2}},
		{name: "no due date", due: nil, expected: DueDecision{Action: DueActionNone}},
	}

	service := newTestEMIService(&mocks.MockAgreementRepository{}, openCatalog(), quietNotifier())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agreement := activeAgreement(3)
			agreement.NextDueDate = tt.due
			assert.Equal(t, tt.expected, service.EvaluateDueDate(agreement, today))
		})
	}
}

func TestSetStatus(t *testing.T) {
	t.Run("marks overdue conditionally", func(t *testing.T) {
		mockRepo := &mocks.MockAgreementRepository{}
		service := newTestEMIService(mockRepo, openCatalog(), quietNotifier())
		agreement := activeAgreement(4)

		mockRepo.On("SetStatus", mock.Anything, domain.StatusChange{
			AgreementID:       agreement.ID,
			From:              domain.AgreementStatusActive,
			To:                domain.AgreementStatusOverdue,
			ExpectedRemaining: 4,
			NextDueDate:       agreement.NextDueDate,
		}).Return(nil)

		require.NoError(t, service.MarkOverdue(context.Background(), agreement))
		assert.Equal(t, domain.AgreementStatusOverdue, agreement.Status)
		assert.NotNil(t, agreement.NextDueDate)
	})

	t.Run("rejects transitions out of terminal states", func(t *testing.T) {
		mockRepo := &mocks.MockAgreementRepository{}
		service := newTestEMIService(mockRepo, openCatalog(), quietNotifier())
		agreement := activeAgreement(0)
		agreement.Status = domain.AgreementStatusCompleted
		agreement.NextDueDate = nil

		err := service.MarkOverdue(context.Background(), agreement)

		assert.True(t, errors.Is(err, customError.ErrInvalidStatusTransition))
		mockRepo.AssertNotCalled(t, "SetStatus", mock.Anything, mock.Anything)
	})

	t.Run("reports a lost race", func(t *testing.T) {
		mockRepo := &mocks.MockAgreementRepository{}
		service := newTestEMIService(mockRepo, openCatalog(), quietNotifier())
		agreement := activeAgreement(4)

		mockRepo.On("SetStatus", mock.Anything, mock.Anything).Return(customError.ErrConcurrentUpdate)

		err := service.MarkOverdue(context.Background(), agreement)

		assert.True(t, errors.Is(err, customError.ErrConcurrentUpdate))
		assert.Equal(t, domain.AgreementStatusActive, agreement.Status)
	})
}

func TestCancel_ClearsNextDueDate(t *testing.T) {
	mockRepo := &mocks.MockAgreementRepository{}
	service := newTestEMIService(mockRepo, openCatalog(), quietNotifier())
	agreement := activeAgreement(4)

	mockRepo.On("GetByID", mock.Anything, agreement.ID).Return(agreement, nil)
	mockRepo.On("SetStatus", mock.Anything, mock.MatchedBy(func(change domain.StatusChange) bool {
		return change.To == domain.AgreementStatusCancelled && change.NextDueDate == nil
	})).Return(nil)

	result, err := service.Cancel(context.Background(), agreement.ID)

	require.NoError(t, err)
	assert.Equal(t, domain.AgreementStatusCancelled, result.Status)
	assert.Nil(t, result.NextDueDate)
	assert.Len(t, result.Payments, 1)
}

func TestGetForUser(t *testing.T) {
	mockRepo := &mocks.MockAgreementRepository{}
	service := newTestEMIService(mockRepo, openCatalog(), quietNotifier())
	agreement := activeAgreement(4)
	missing := uuid.New()

	mockRepo.On("GetByID", mock.Anything, agreement.ID).Return(agreement, nil)
	mockRepo.On("GetByID", mock.Anything, missing).Return(nil, sql.ErrNoRows)

	found, err := service.GetForUser(context.Background(), "user-1", agreement.ID)
	require.NoError(t, err)
	assert.Equal(t, agreement.ID, found.ID)

	_, err = service.GetForUser(context.Background(), "user-2", agreement.ID)
	assert.True(t, errors.Is(err, customError.ErrAgreementNotFound))

	_, err = service.GetForUser(context.Background(), "user-1", missing)
	assert.True(t, errors.Is(err, customError.ErrAgreementNotFound))
}

func TestNotifyDue_UsesTemplateForDecision(t *testing.T) {
	mockNotifier := &mocks.MockNotifier{}
	service := newTestEMIService(&mocks.MockAgreementRepository{}, openCatalog(), mockNotifier)
	agreement := activeAgreement(4)

	mockNotifier.On("SendNotification", mock.Anything, "user-1", domain.TemplateEMIOverdue, mock.MatchedBy(func(data map[string]interface{}) bool {
		return data["days_left"] == -2 && data["course_title"] == "Go Fundamentals" && data["amount"] == "1000.00"
	})).Return(nil)

	err := service.NotifyDue(context.Background(), agreement, DueDecision{Action: DueActionMarkOverdue, DaysLeft: -2})

	require.NoError(t, err)
	mockNotifier.AssertExpectations(t)
}
