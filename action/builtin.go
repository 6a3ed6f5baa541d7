// Copyright 2024 The Panda Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package action

import "fmt"

// Toolchain holds the resolved analysis tool executables.
type Toolchain struct {
	// CC replaces the original C compiler in derived invocations.
	CC string
	// CXX replaces the original C++ compiler.
	CXX string
	// CFM is the clang-extdef-mapping executable.
	CFM string
	// FmName overrides the external definition map file name.
	FmName string
}

// DefaultToolchain is the toolchain used when no override is given.
var DefaultToolchain = Toolchain{
	CC:  "clang",
	CXX: "clang++",
	CFM: "clang-extdef-mapping",
}

func (tc Toolchain) tools() map[Lang]string {
	return map[Lang]string{
		LangC:   tc.CC,
		LangCXX: tc.CXX,
	}
}

// AST generates Clang PCH files (*.ast).
func AST(tc Toolchain) *Compiler {
	return &Compiler{
		ActionName: "ast",
		PromptText: "Generating Clang PCH file",
		Tools:      tc.tools(),
		ExtraArgs:  []string{"-emit-ast"},
		Ext:        ".ast",
	}
}

// Preprocess generates preprocessed files (*.i for C, *.ii for C++).
func Preprocess(tc Toolchain) *Compiler {
	return &Compiler{
		ActionName: "i",
		PromptText: "Generating C/C++ preprocessed file",
		Tools:      tc.tools(),
		ExtraArgs:  []string{"-E"},
		Ext:        ".i",
		Exts:       map[Lang]string{LangC: ".i", LangCXX: ".ii"},
	}
}

// EmitLL generates LLVM IR files (*.ll).
func EmitLL(tc Toolchain) *Compiler {
	return &Compiler{
		ActionName: "ll",
		PromptText: "Generating LLVM IR file",
		Tools:      tc.tools(),
		ExtraArgs:  []string{"-emit-llvm", "-S", "-Xclang", "-disable-O0-optnone"},
		Ext:        ".ll",
	}
}

// EmitBC generates LLVM bitcode files (*.bc).
func EmitBC(tc Toolchain) *Compiler {
	return &Compiler{
		ActionName: "bc",
		PromptText: "Generating LLVM BitCode file",
		Tools:      tc.tools(),
		ExtraArgs:  []string{"-emit-llvm", "-Xclang", "-disable-O0-optnone"},
		Ext:        ".bc",
	}
}

// SourceList lists the unique absolute source files of the database.
func SourceList() *Cdb {
	return &Cdb{
		ActionName: "source-list",
		PromptText: "Generating source file index",
		Kind:       CdbSourceList,
	}
}

// FileList lists the unique source and header closure of the database.
func FileList() *Cdb {
	return &Cdb{
		ActionName: "file-list",
		PromptText: "Generating source and header index",
		Kind:       CdbFileList,
	}
}

// InvocationList emits the invocation list for on-demand CTU analysis.
func InvocationList() *Cdb {
	return &Cdb{
		ActionName: "invocation-list",
		PromptText: "Generating CTU invocation list",
		Kind:       CdbInvocationList,
	}
}

// ExtdefMap emits the Clang external definition map. With onDemand the
// map points at the original sources, otherwise at the .ast artifacts
// generated by the AST action.
func ExtdefMap(onDemand bool) *Cdb {
	kind := CdbExtdefMapAst
	if onDemand {
		kind = CdbExtdefMapSource
	}
	return &Cdb{
		ActionName: string(kind),
		PromptText: "Generating Clang external function mapping",
		Kind:       kind,
	}
}

// Builtin returns the builtin config for name, matching the run
// subcommand's action identifiers.
func Builtin(name string, tc Toolchain) (Config, error) {
	switch name {
	case "ast":
		return AST(tc), nil
	case "i":
		return Preprocess(tc), nil
	case "ll":
		return EmitLL(tc), nil
	case "bc":
		return EmitBC(tc), nil
	case "source-list":
		return SourceList(), nil
	case "file-list":
		return FileList(), nil
	case "invocation-list":
		return InvocationList(), nil
	case "fm":
		return ExtdefMap(false), nil
	case "fm-on-demand":
		return ExtdefMap(true), nil
	}
	return nil, fmt.Errorf("unknown action %q", name)
}
