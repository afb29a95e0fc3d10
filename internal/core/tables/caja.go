package tables

import "github.com/JonMunkholm/storesync/internal/core"

func init() {
	registerGastos()
}

func registerGastos() {
	core.Register(core.EntityDefinition{
		Info: core.EntityInfo{
			Key:   "gastos",
			Group: "caja",
			Label: "Gastos",
		},
		Fields: fields(
			required("id_ga", "hora", "costo"),
			optional(
				"tema", "nencargado", "fecha", "sucursal", "borrado", "tipo",
				"bdesdecaja", "codigo", "d_num_caja", "utime", "utime_modificado",
			),
		),
		IdentityKeys: []core.IdentityKey{{"id_ga"}},
	})
}
