package tables

import "github.com/JonMunkholm/storesync/internal/core"

func init() {
	registerClientes()
	registerVtags()
}

func registerClientes() {
	core.Register(core.EntityDefinition{
		Info: core.EntityInfo{
			Key:   "clientes",
			Group: "ventas",
			Label: "Clientes",
		},
		Fields: fields(
			required("dni"),
			optional(
				"id", "nombre", "direccion", "vendedor", "transporte", "telefono",
				"tipo", "resiva", "deuda", "info2", "resropas", "localidad",
				"provincia", "memo", "borrado", "email", "ref_id_provincia",
				"id_cliente_centralizado", "ref_id_vendedor", "direccion_transp",
				"localidad_transp", "prov_transp", "codigo_postal", "utime",
			),
		),
		IdentityKeys: []core.IdentityKey{{"dni"}, {"id"}},
	})
}

func registerVtags() {
	core.Register(core.EntityDefinition{
		Info: core.EntityInfo{
			Key:   "vtags",
			Group: "ventas",
			Label: "Tags de venta",
		},
		Fields: fields(
			required("vtag_id", "sucursal"),
			optional(
				"ref_id_vcode", "ref_id_cuenta", "num_autorizacion", "fmonto",
				"b_por_cobranza", "borrado", "utime", "utime_modificado",
			),
		),
		IdentityKeys: []core.IdentityKey{{"vtag_id"}},
	})
}
