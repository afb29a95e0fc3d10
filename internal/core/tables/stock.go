package tables

import "github.com/JonMunkholm/storesync/internal/core"

func init() {
	registerTodocodigos()
	registerCodigos()
	registerColor()
	registerTipos()
	registerIngresos()
}

// Uniqueness conflicts the retry lookup cannot resolve are skipped, not failed.
func registerTodocodigos() {
	core.Register(core.EntityDefinition{
		Info: core.EntityInfo{
			Key:   "todocodigos",
			Group: "stock",
			Label: "Artículos",
		},
		Fields: fields(
			required("id_todocodigo", "tcodigo"),
			optional(
				"tdesc", "tpre1", "tpre2", "tpre3", "torgpre", "ttelacodigo",
				"ttelakg", "tinfo1", "tinfo2", "tinfo3", "borrado", "fotonombre",
				"tpre4", "tpre5", "pubip", "ip", "mac", "bmobile",
				"ref_id_temporada", "ref_id_tipo", "ref_id_origen", "ref_id_empresa",
				"memo", "estatus_precios", "tprecio_dolar", "id_todocodigo_centralizado",
				"b_mostrar_vcontrol", "d_oferta_mode", "id_serial", "str_prefijo",
				"utime", "utime_modificado",
			),
		),
		IdentityKeys:        []core.IdentityKey{{"id_todocodigo"}, {"tcodigo"}},
		SkipUniqueConflicts: true,
	})
}

func registerCodigos() {
	core.Register(core.EntityDefinition{
		Info: core.EntityInfo{
			Key:   "codigos",
			Group: "stock",
			Label: "Códigos",
		},
		Fields: fields(
			required("codigo"),
			optional(
				"descripcion", "pre1", "pre2", "pre3", "preorg", "codigoproducto",
				"borrado", "fotonombre", "pre4", "pre5", "valor1", "valor2", "valor3",
				"pubip", "ip", "mac", "bmobile", "tipocodigo", "id_codigo",
				"ref_id_todocodigo", "ref_id_color", "str_talle", "ref_id_temporada",
				"ref_id_talle", "id_codigo_centralizado", "id_woocommerce",
				"id_woocommerce_producto", "b_mostrar_vcontrol", "b_sincronizar_x_web",
				"d_oferta_mode", "utime", "utime_modificado",
			),
		),
		IdentityKeys:        []core.IdentityKey{{"codigo"}, {"id_codigo"}},
		SkipUniqueConflicts: true,
	})
}

func registerColor() {
	core.Register(core.EntityDefinition{
		Info: core.EntityInfo{
			Key:   "color",
			Group: "stock",
			Label: "Colores",
		},
		Fields: fields(
			required("idcolor"),
			optional("descripcioncolor", "borrado", "id_color", "utime"),
		),
		IdentityKeys: []core.IdentityKey{{"idcolor"}, {"id_color"}},
	})
}

func registerTipos() {
	core.Register(core.EntityDefinition{
		Info: core.EntityInfo{
			Key:   "tipos",
			Group: "stock",
			Label: "Tipos",
		},
		Fields: fields(
			required("tpcodigo"),
			optional("tpdesc", "tpinfo1", "borrado", "id_tipo", "utime"),
		),
		IdentityKeys: []core.IdentityKey{{"tpcodigo"}, {"id_tipo"}},
	})
}

// Any failed stock entry rolls back its whole chunk.
func registerIngresos() {
	core.Register(core.EntityDefinition{
		Info: core.EntityInfo{
			Key:   "ingresos",
			Group: "stock",
			Label: "Ingresos",
		},
		Fields: fields(
			required("ingreso_id", "sucursal", "codigo", "cant3"),
			optional(
				"desc3", "pre1", "pre2", "pre3", "preorg", "fecha", "hora",
				"codigoproducto", "borrado", "fotonombre", "pre4", "refemp",
				"refcolor", "pre5", "totpre", "pubip", "ip", "mac", "ref1",
				"ref_vcode", "bfallado", "bmovido", "ref_sucursal", "auto_agregado",
				"b_autoagregado", "ref_id_codigo", "num_corte", "casoesp",
				"ref_id_todocodigo", "id_ingreso_centralizado", "utime",
				"utime_modificado",
			),
		),
		IdentityKeys: []core.IdentityKey{{"ingreso_id", "sucursal"}},
		ForeignKeys:  []core.ForeignKey{{Column: "codigo", References: "codigos"}},
		Mode:         core.Strict,
	})
}
