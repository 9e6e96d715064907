/*
Package dynlink is an incremental linker for bytecode units, used by an interactive session
to load compiled code into its own running machine.

# Underwater

 1. A unit container holds code, relocations, imported interfaces with their fingerprints and
    optional debug events. Archives hold several units plus the shared libraries they need.
 2. Loading checks fingerprints against the session's consistency registry, copies the code into
    a fresh image sealed with a return instruction and the closure trailer, patches relocations
    against the symbol table and runs the image once as a thunk.
 3. A failed load restores the symbol table, so no global it defined stays reachable.
    Consistency records are never rolled back.

# Packages

  - [github.com/ZenLiuCN/dynlink/pool] resolves names against a search path, loads archives
    and pulls in missing dependencies recursively.
  - [github.com/ZenLiuCN/dynlink/printer] installs user functions as value printers.
  - [github.com/ZenLiuCN/dynlink/tracer] redirects closures through a shared trampoline to trace calls.
  - [github.com/ZenLiuCN/dynlink/native] opens real shared objects with [goloader].

# Notes

 1. A Session is single threaded, one per interactive session.
 2. Loading the same unit twice defines its globals again; the newer definition wins and nothing
    guards against it.

# Compile tool

The compiler command inspects containers, packs archives and loads files into a fresh session:

	go install github.com/ZenLiuCN/dynlink/compiler@latest
	compiler -h

[goloader]: https://github.com/pkujhd/goloader
*/
package dynlink
