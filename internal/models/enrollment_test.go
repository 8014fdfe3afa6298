package models

import "testing"

func snapshotWithLessons(lessons ...string) CourseStructureSnapshot {
	return CourseStructureSnapshot{
		Version:      SnapshotVersion,
		TotalLessons: len(lessons),
		Modules:      []ModuleSnapshot{{ID: "m1", Title: "Module 1", LessonIDs: lessons}},
	}
}

func TestProgressAddIsIdempotent(t *testing.T) {
	p := Progress{Version: ProgressVersion}
	if !p.Add("l1") {
		t.Fatalf("expected first add to report true")
	}
	if p.Add("l1") {
		t.Fatalf("expected duplicate add to report false")
	}
	if len(p.CompletedLessons) != 1 {
		t.Fatalf("expected one completed lesson, got %d", len(p.CompletedLessons))
	}
}

func TestProgressPercentage(t *testing.T) {
	snapshot := snapshotWithLessons("l1", "l2", "l3")

	tests := []struct {
		name      string
		completed []string
		want      float64
	}{
		{"empty", nil, 0},
		{"one of three", []string{"l1"}, 33.33},
		{"two of three", []string{"l1", "l2"}, 66.67},
		{"all", []string{"l1", "l2", "l3"}, 100},
		{"foreign lessons ignored", []string{"l1", "ghost"}, 33.33},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Progress{Version: ProgressVersion, CompletedLessons: tt.completed}
			if got := ProgressPercentage(p, snapshot); got != tt.want {
				t.Fatalf("ProgressPercentage() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProgressPercentageEmptySnapshot(t *testing.T) {
	p := Progress{Version: ProgressVersion, CompletedLessons: []string{"l1"}}
	if got := ProgressPercentage(p, CourseStructureSnapshot{}); got != 0 {
		t.Fatalf("expected 0 for empty snapshot, got %v", got)
	}
}

func TestSnapshotHasLesson(t *testing.T) {
	snapshot := snapshotWithLessons("l1", "l2")
	if !snapshot.HasLesson("l2") {
		t.Fatalf("expected l2 in snapshot")
	}
	if snapshot.HasLesson("l9") {
		t.Fatalf("did not expect l9 in snapshot")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	snapshot := snapshotWithLessons("l1", "l2")
	raw, err := snapshot.Value()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded CourseStructureSnapshot
	if err := decoded.Scan(raw); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded.TotalLessons != 2 || len(decoded.Modules) != 1 {
		t.Fatalf("unexpected decoded snapshot: %+v", decoded)
	}
}
