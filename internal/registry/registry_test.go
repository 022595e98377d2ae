package registry

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/zulandar/reactoryard/internal/db"
	"github.com/zulandar/reactoryard/internal/errs"
	"github.com/zulandar/reactoryard/internal/models"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.ConnectSQLite(filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return gdb
}

func seed(t *testing.T, gdb *gorm.DB) (models.Reactor, models.Product, models.DelayReason) {
	t.Helper()
	r := models.Reactor{Name: "R1", Active: true}
	p := models.Product{Code: "P-100", Name: "Polyol", StandardDuration: 6 * time.Hour}
	d := models.DelayReason{Name: "Maintenance"}
	for _, v := range []interface{}{&r, &p, &d} {
		if err := gdb.Create(v).Error; err != nil {
			t.Fatalf("seed %T: %v", v, err)
		}
	}
	return r, p, d
}

func TestGetters(t *testing.T) {
	gdb := openTestDB(t)
	r, p, d := seed(t, gdb)

	gotR, err := GetReactor(gdb, r.ID)
	if err != nil || gotR.Name != "R1" {
		t.Errorf("GetReactor = %+v, %v", gotR, err)
	}
	gotP, err := GetProduct(gdb, p.ID)
	if err != nil || gotP.Code != "P-100" || gotP.StandardDuration != 6*time.Hour {
		t.Errorf("GetProduct = %+v, %v", gotP, err)
	}
	gotD, err := GetDelayReason(gdb, d.ID)
	if err != nil || gotD.Name != "Maintenance" {
		t.Errorf("GetDelayReason = %+v, %v", gotD, err)
	}
}

func TestGetters_NotFound(t *testing.T) {
	gdb := openTestDB(t)

	tests := []struct {
		name   string
		call   func() error
		entity string
	}{
		{"reactor", func() error { _, err := GetReactor(gdb, 99); return err }, "reactor"},
		{"product", func() error { _, err := GetProduct(gdb, 99); return err }, "product"},
		{"delay reason", func() error { _, err := GetDelayReason(gdb, 99); return err }, "delay reason"},
		{"reactor by name", func() error { _, err := FindReactorByName(gdb, "R9"); return err }, "reactor"},
		{"product by code", func() error { _, err := FindProductByCode(gdb, "X"); return err }, "product"},
		{"reason by name", func() error { _, err := FindDelayReasonByName(gdb, "Rain"); return err }, "delay reason"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			var nf *errs.NotFoundError
			if !errors.As(err, &nf) {
				t.Fatalf("err = %v, want NotFoundError", err)
			}
			if nf.Entity != tt.entity {
				t.Errorf("Entity = %q, want %q", nf.Entity, tt.entity)
			}
		})
	}
}

func TestFindByKey(t *testing.T) {
	gdb := openTestDB(t)
	r, p, d := seed(t, gdb)

	gotR, err := FindReactorByName(gdb, "R1")
	if err != nil || gotR.ID != r.ID {
		t.Errorf("FindReactorByName = %+v, %v", gotR, err)
	}
	gotP, err := FindProductByCode(gdb, "P-100")
	if err != nil || gotP.ID != p.ID {
		t.Errorf("FindProductByCode = %+v, %v", gotP, err)
	}
	gotD, err := FindDelayReasonByName(gdb, "Maintenance")
	if err != nil || gotD.ID != d.ID {
		t.Errorf("FindDelayReasonByName = %+v, %v", gotD, err)
	}
}

func TestListReactors_Ordered(t *testing.T) {
	gdb := openTestDB(t)
	for _, n := range []string{"R3", "R1", "R2"} {
		gdb.Create(&models.Reactor{Name: n, Active: true})
	}
	list, err := ListReactors(gdb)
	if err != nil {
		t.Fatalf("ListReactors: %v", err)
	}
	if len(list) != 3 || list[0].Name != "R1" || list[2].Name != "R3" {
		t.Errorf("ListReactors order = %+v", list)
	}
}
