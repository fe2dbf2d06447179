// Package bench measures ripple against a project-list store.
//
// Each scenario runs on a fresh store of generated projects with one view
// per project. A view subscribes to its own project node, so the number of
// callbacks a write causes shows how precisely changes are targeted. Every
// scenario asserts that count as well as timing the write.
package bench
