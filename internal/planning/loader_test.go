package planning

import (
	"context"
	"testing"

	"github.com/hyperjump/sakusei/internal/models"
	"github.com/hyperjump/sakusei/internal/storage"
)

func TestStorageLoader(t *testing.T) {
	ctx := context.Background()
	st, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	project := &storage.Project{
		ID: "p1",
		Context: models.PlanningContext{
			ProjectName: "Tower A",
			Objectives:  []string{"Deliver stage 1 by Q3"},
			Disciplines: []string{"Structural"},
		},
		Transmittals: map[string]models.Transmittal{
			"Structural": {Name: "T-01", Documents: []models.TransmittalDocument{{ID: "td1", Name: "GA Plan", Revision: "B"}}},
		},
		DocumentSets: map[string][]string{"Structural": {"set1", "set2"}},
	}
	if err := st.CreateProject(ctx, project); err != nil {
		t.Fatal(err)
	}

	loader := NewStorageLoader(st)

	pc, err := loader.LoadContext(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if pc.ProjectID != "p1" || pc.ProjectName != "Tower A" {
		t.Errorf("context = %+v", pc)
	}

	if _, err := loader.LoadContext(ctx, "missing"); err == nil {
		t.Error("missing project should be an error")
	}

	trans, err := loader.LoadTransmittal(ctx, "p1", "Structural")
	if err != nil {
		t.Fatal(err)
	}
	if trans == nil || len(trans.Documents) != 1 {
		t.Errorf("transmittal = %+v", trans)
	}

	trans, err = loader.LoadTransmittal(ctx, "p1", "Electrical")
	if err != nil {
		t.Fatal(err)
	}
	if trans != nil {
		t.Error("absent transmittal should be nil, not an error")
	}

	sets, err := loader.LoadDocumentSetIDs(ctx, "p1", "Structural")
	if err != nil {
		t.Fatal(err)
	}
	if len(sets) != 2 {
		t.Errorf("document sets = %v", sets)
	}
}
