package kube

import "github.com/yairfalse/kera/providers"

func init() {
	providers.Register(PodType())
	providers.Register(NodeType())
	providers.Register(NamespaceType())
}
