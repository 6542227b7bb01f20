package service

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/Soule73/examena-sub000/internal/repository"
)

// MonitorService orchestrates live exam monitoring business logic.
type MonitorService struct {
	monitorRepo *repository.MonitorRepository
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(monitorRepo *repository.MonitorRepository) *MonitorService {
	return &MonitorService{monitorRepo: monitorRepo}
}

// StudentProgressSnapshot holds per-student answered and violation counts for
// an exam's active attempts.
type StudentProgressSnapshot struct {
	AnsweredCounts  map[int]int64 // student_id → answered_count
	ViolationCounts map[int]int64 // student_id → violation_count
	TotalViolations int64
}

// GetStudentProgress returns answered counts and violation counts. The two
// fetches are independent and run concurrently.
func (s *MonitorService) GetStudentProgress(ctx context.Context, examID uuid.UUID) (*StudentProgressSnapshot, error) {
	snapshot := &StudentProgressSnapshot{
		AnsweredCounts:  make(map[int]int64),
		ViolationCounts: make(map[int]int64),
	}

	var (
		answeredCounts  map[int]int64
		violationCounts map[int]int64
		answeredErr     error
		violationErr    error
		wg              sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		answeredCounts, answeredErr = s.monitorRepo.GetAnsweredCounts(ctx, examID)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		violationCounts, violationErr = s.monitorRepo.GetViolationCounts(ctx, examID)
	}()

	wg.Wait()

	// Answered counts are critical; violation counts are best-effort.
	if answeredErr != nil {
		return nil, answeredErr
	}

	if answeredCounts != nil {
		snapshot.AnsweredCounts = answeredCounts
	}

	if violationErr == nil && violationCounts != nil {
		snapshot.ViolationCounts = violationCounts
		for _, count := range violationCounts {
			snapshot.TotalViolations += count
		}
	}

	return snapshot, nil
}

// GetActiveStudents returns the ids of students with a started attempt.
func (s *MonitorService) GetActiveStudents(ctx context.Context, examID uuid.UUID) ([]int, error) {
	return s.monitorRepo.GetActiveStudentIDs(ctx, examID)
}
