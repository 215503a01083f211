// Package namespace models the domain → user → repository hierarchy used to
// address objects across hosted repositories.
//
// A Namespace is a named node tagged with its level. A Ref binds a
// namespace to an object id and an optional parent Ref, so a repository
// ref links back through its user to its domain. Refs are stored untyped;
// DomainRef, UserRef and RepositoryRef are kind-checked views built on
// demand with AsDomainRef, AsUserRef and AsRepositoryRef.
//
// The compact string form of a full chain is a path fragment:
//
//	github.com@tett23:ckusro-core
package namespace
