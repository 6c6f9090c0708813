// Package element models the annotated declarations that annodex indexes.
//
// An [Element] is a closed variant with exactly five cases:
//
//	*Class        named type declaration (struct, interface, other)
//	*Method       method declared on a class
//	*Field        struct field declared on a class
//	*Constructor  New<T> function returning a class
//	*Package      package clause
//
// Every element carries its annotation mirrors and a source position.
// Members carry their declaring class, which is what the location
// encoding needs.
//
// # Locations
//
// A location string identifies one annotated declaration inside an
// index resource:
//
//	class_location     := binary_class_name
//	member_location    := binary_class_name "#" member_name ["()"]
//	package_location   := package_import_path ".*"
//
// The "()" suffix separates methods from fields of the same name.
// Overloads are not distinguished; Go has none, and the grammar stays
// compatible with indexes written by other tools. Constructors encode
// as their declaring class, so readers find them by inspecting the
// class's declared constructors.
//
// # Meta-annotations
//
// Three annotation identities are reserved under the "annodex"
// qualifier: [IndexedAnnotation] marks an annotation type as indexable,
// [RetentionAnnotation] declares its visibility and [InheritedAnnotation]
// lets struct embedding propagate it.
package element
