package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/grader-go-api/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Exercise{}, &models.Submission{}, &models.ExecutionResult{}, &models.SimilarityReport{}, &models.GradeRecord{}))
	return db
}

func seedSubmission(t *testing.T, db *gorm.DB, teacherID, authorID uint) models.Submission {
	t.Helper()
	exercise := models.Exercise{Title: "FizzBuzz", TeacherID: teacherID, Language: models.LanguagePython, ExpectedOutput: "fizzbuzz", MaxGrade: 20}
	require.NoError(t, db.Create(&exercise).Error)

	submission := models.Submission{ExerciseID: exercise.ID, AuthorID: authorID, Language: models.LanguagePython, Source: "print('fizzbuzz')"}
	require.NoError(t, db.Create(&submission).Error)
	return submission
}

func TestGradeRecordRepositoryAppendVersionKeepsAuditTrail(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGradeRecordRepository(db)
	submission := seedSubmission(t, db, 7, 42)

	initial := models.GradeRecord{SubmissionID: submission.ID, Status: models.GradeStatusPending, GraderKind: models.GraderKindAuto}
	require.NoError(t, repo.CreateInitial(context.Background(), &initial))
	require.Equal(t, 1, initial.Version)
	require.True(t, initial.Current)

	next := models.GradeRecord{Status: models.GradeStatusExecuting, GraderKind: models.GraderKindAuto}
	require.NoError(t, repo.AppendVersion(context.Background(), initial, &next))
	require.Equal(t, 2, next.Version)

	current, err := repo.CurrentBySubmission(context.Background(), submission.ID)
	require.NoError(t, err)
	require.Equal(t, models.GradeStatusExecuting, current.Status)
	require.Equal(t, 2, current.Version)

	versions, err := repo.ListVersions(context.Background(), submission.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	require.Equal(t, models.GradeStatusPending, versions[0].Status)
	require.False(t, versions[0].Current, "superseded version must lose the current flag")
	require.True(t, versions[1].Current)
}

func TestGradeRecordRepositoryAppendVersionRejectsStalePrior(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGradeRecordRepository(db)
	submission := seedSubmission(t, db, 7, 42)

	initial := models.GradeRecord{SubmissionID: submission.ID, Status: models.GradeStatusPending}
	require.NoError(t, repo.CreateInitial(context.Background(), &initial))

	first := models.GradeRecord{Status: models.GradeStatusExecuting}
	require.NoError(t, repo.AppendVersion(context.Background(), initial, &first))

	// a second writer still holding version 1 must not clobber version 2
	second := models.GradeRecord{Status: models.GradeStatusAutoGraded, Grade: 20}
	err := repo.AppendVersion(context.Background(), initial, &second)
	require.ErrorIs(t, err, ErrVersionConflict)

	versions, err := repo.ListVersions(context.Background(), submission.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
}

func TestGradeRecordRepositoryListCurrentWithSubmissionsFilters(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGradeRecordRepository(db)

	mathExercise := models.Exercise{Title: "Sums", TeacherID: 1, Language: models.LanguageSQL}
	require.NoError(t, db.Create(&mathExercise).Error)
	csExercise := models.Exercise{Title: "Sorting", TeacherID: 2, Language: models.LanguagePython}
	require.NoError(t, db.Create(&csExercise).Error)

	alice := models.Submission{ExerciseID: mathExercise.ID, AuthorID: 10, Language: models.LanguageSQL, Source: "SELECT 1;"}
	require.NoError(t, db.Create(&alice).Error)
	bob := models.Submission{ExerciseID: csExercise.ID, AuthorID: 11, Language: models.LanguagePython, Source: "print(1)"}
	require.NoError(t, db.Create(&bob).Error)

	for _, submission := range []models.Submission{alice, bob} {
		record := models.GradeRecord{SubmissionID: submission.ID, Status: models.GradeStatusAutoGraded, Grade: 15}
		require.NoError(t, repo.CreateInitial(context.Background(), &record))
	}

	all, err := repo.ListCurrentWithSubmissions(context.Background(), GradeFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	byExercise, err := repo.ListCurrentWithSubmissions(context.Background(), GradeFilter{ExerciseID: mathExercise.ID})
	require.NoError(t, err)
	require.Len(t, byExercise, 1)
	require.Equal(t, alice.ID, byExercise[0].SubmissionID)

	byAuthor, err := repo.ListCurrentWithSubmissions(context.Background(), GradeFilter{AuthorID: 11})
	require.NoError(t, err)
	require.Len(t, byAuthor, 1)
	require.Equal(t, bob.ID, byAuthor[0].SubmissionID)

	byTeacher, err := repo.ListCurrentWithSubmissions(context.Background(), GradeFilter{TeacherID: 2})
	require.NoError(t, err)
	require.Len(t, byTeacher, 1)
	require.Equal(t, bob.ID, byTeacher[0].SubmissionID)
	require.Equal(t, csExercise.ID, byTeacher[0].Submission.ExerciseID)

	future, err := repo.ListCurrentWithSubmissions(context.Background(), GradeFilter{From: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	require.Empty(t, future)
}
