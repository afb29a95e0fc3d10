package core

import (
	"io"
	"log/slog"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func gastosDef() *EntityDefinition {
	return &EntityDefinition{
		Info: EntityInfo{Key: "gastos", Table: "gastos", Group: "caja", Label: "Gastos"},
		Fields: []FieldSpec{
			{Name: "id_ga"},
			{Name: "descripcion"},
			{Name: "costo", Required: true},
			{Name: "hora", Required: true},
			{Name: "sucursal"},
			{Name: "utime"},
		},
		IdentityKeys:   []IdentityKey{{"id_ga"}},
		TimestampField: "utime",
	}
}

func clientesDef() *EntityDefinition {
	return &EntityDefinition{
		Info: EntityInfo{Key: "clientes", Table: "clientes", Group: "ventas", Label: "Clientes"},
		Fields: []FieldSpec{
			{Name: "dni"},
			{Name: "id"},
			{Name: "nombre"},
			{Name: "utime"},
		},
		IdentityKeys:   []IdentityKey{{"dni"}, {"id"}},
		TimestampField: "utime",
	}
}

func renglonesDef() *EntityDefinition {
	return &EntityDefinition{
		Info: EntityInfo{Key: "renglones", Table: "renglones", Group: "ventas"},
		Fields: []FieldSpec{
			{Name: "id"},
			{Name: "codigo"},
			{Name: "cant"},
			{Name: "utime"},
		},
		IdentityKeys:   []IdentityKey{{"id"}},
		TimestampField: "utime",
		ForeignKeys:    []ForeignKey{{Column: "codigo", References: "codigos"}},
	}
}

func gasto(id any, costo, utime string) *Record {
	r := RecordOf("id_ga", id, "costo", costo, "hora", "10:00")
	if utime != "" {
		r.Set("utime", utime)
	}
	return r
}
