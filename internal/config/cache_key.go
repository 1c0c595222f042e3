package config

import (
	"fmt"

	"github.com/google/uuid"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentSessionKey returns the cache key holding a student account's
// active token id. One live device per student.
func (r *CacheKeyStruct) StudentSessionKey(userID uuid.UUID) string {
	return fmt.Sprintf("login:%s", userID)
}

// ExamPaperKey returns the cache key for an exam's answer-free paper.
func (r *CacheKeyStruct) ExamPaperKey(examID uuid.UUID) string {
	return fmt.Sprintf("exam:%s:paper", examID)
}

// ExamPrefix returns the invalidation prefix covering every cached value
// derived from one exam.
func (r *CacheKeyStruct) ExamPrefix(examID uuid.UUID) string {
	return fmt.Sprintf("exam:%s:", examID)
}

// AttemptAnswersKey returns the Redis hash buffering a student's
// in-progress answers for an exam.
func (r *CacheKeyStruct) AttemptAnswersKey(examID, studentID uuid.UUID) string {
	return fmt.Sprintf("student:%s:exam:%s:answers", studentID, examID)
}

// ResultKey returns the cache key for a materialized result.
func (r *CacheKeyStruct) ResultKey(resultID uuid.UUID) string {
	return fmt.Sprintf("result:%s", resultID)
}

var CacheKey = NewCacheKeyStruct()
