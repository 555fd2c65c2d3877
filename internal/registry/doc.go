// Package registry holds the relationship definitions known to one process.
//
// A Registry is an explicit object: construct one with New, register every
// relationship through Register (or LoadFile), and pass it to the
// normalizer, clause builder and store. Nothing in mbrel reads relationship
// definitions from global state.
//
// Register normalizes a Definition before storing it:
//
//	Definition{ID: "posts_to_pages", From: PostType("post"), To: PostType("page")}
//
// becomes an ir.Relationship whose sides carry object_type "post", the
// field selector (post_type "post" and "page"), the default empty message
// and the default meta box settings. Legacy keys (meta_box.empty_message,
// meta_box.field_title and top-level post_type, taxonomy, query_args) are
// migrated into their current locations.
//
// Registering the same id twice replaces the earlier definition; the
// relationship keeps its original position in All.
package registry
