// Package domaintest builds small, fully resolvable model trees for tests.
package domaintest

import (
	"github.com/irgordon/karidc/api/internal/core/domain"
)

const (
	LoggingNS = "urn:karidc:logging:1.0"
	WebNS     = "urn:karidc:web:1.0"

	HostName   = "node-1"
	ServerOne  = "server-one"
	ServerTwo  = "server-two"
	MainGroup  = "main-group"
	OtherGroup = "other-group"
)

var (
	LoggingQName = domain.QName{Namespace: LoggingNS, Local: "logging"}
	WebQName     = domain.QName{Namespace: WebNS, Local: "web"}

	AppContent = []byte("app.war content v1")
	AppHash    = domain.HashContent(AppContent)
)

// Subsystem builds a generic subsystem with the given attribute pairs.
func Subsystem(q domain.QName, kv ...string) domain.Subsystem {
	s := domain.NewGenericSubsystem(q)
	for i := 0; i+1 < len(kv); i += 2 {
		s.SetAttribute(kv[i], kv[i+1])
	}
	return s
}

// Domain returns a domain with two profiles ("base" and "web" including
// "base"), a public interface, a management placeholder, a binding group,
// one deployment and two server groups.
func Domain() *domain.Domain {
	d := domain.NewDomain()
	must(d.AddExtension(&domain.Extension{Module: "org.karidc.logging"}))
	must(d.AddExtension(&domain.Extension{Module: "org.karidc.web"}))

	base := domain.NewProfile("base")
	must(base.AddSubsystem(Subsystem(LoggingQName, "level", "INFO")))
	must(d.AddProfile(base))

	web := domain.NewProfile("web")
	must(web.AddInclude("base"))
	must(web.AddSubsystem(Subsystem(WebQName, "port", "8080", "threads", "16")))
	must(d.AddProfile(web))

	must(d.AddInterface(&domain.Interface{Name: "public", Criteria: domain.Criteria{Kind: domain.CriteriaInetAddress, Value: "10.0.0.1"}}))
	must(d.AddInterface(&domain.Interface{Name: "management"}))

	sbg := domain.NewSocketBindingGroup("standard", "public")
	must(sbg.AddBinding(&domain.SocketBinding{Name: "http", Port: 8080}))
	must(sbg.AddBinding(&domain.SocketBinding{Name: "admin", Interface: "management", Port: 9990}))
	must(d.AddSocketBindingGroup(sbg))

	must(d.AddDeployment(&domain.Deployment{
		Key:         domain.DeploymentKey{Name: "app.war", Hash: AppHash},
		RuntimeName: "app.war",
	}))

	main := domain.NewServerGroup(MainGroup, "web")
	main.SetSocketBinding("standard", 100)
	must(main.AddDeployment(&domain.ServerGroupDeployment{UniqueName: "app.war", RuntimeName: "app.war", Hash: AppHash, Start: true}))
	must(main.Properties().Set("a", domain.Ptr("2")))
	must(main.Properties().Set("b", domain.Ptr("2")))
	must(d.AddServerGroup(main))

	other := domain.NewServerGroup(OtherGroup, "base")
	must(d.AddServerGroup(other))

	must(d.Properties().Set("a", domain.Ptr("1")))
	return d
}

// Host returns a host completing the management interface, with a default
// JVM and two servers: server-one in main-group, server-two in other-group.
func Host() *domain.Host {
	h := domain.NewHost(HostName)
	must(h.AddExtension(&domain.Extension{Module: "org.karidc.logging"}))
	must(h.AddInterface(&domain.Interface{Name: "management", Criteria: domain.Criteria{Kind: domain.CriteriaLoopback}}))

	jvm := domain.NewJVM("default")
	jvm.HeapSize = "256m"
	jvm.MaxHeapSize = "512m"
	jvm.Options = []string{"-server"}
	must(h.AddJVM(jvm))

	must(h.Properties().Set("b", domain.Ptr("3")))
	must(h.Properties().Set("c", domain.Ptr("3")))

	one := domain.NewServer(ServerOne, MainGroup)
	must(one.Properties().Set("c", domain.Ptr("4")))
	one.SetJVM(&domain.JVM{Name: "default", MaxHeapSize: "1g"})
	must(h.AddServer(one))

	two := domain.NewServer(ServerTwo, OtherGroup)
	two.SetAutoStart(false)
	must(h.AddServer(two))
	return h
}

// ServerModel flattens server-one from the default fixtures.
func ServerModel() *domain.ServerModel {
	m, err := domain.NewServerModel(Domain(), Host(), ServerOne)
	must(err)
	return m
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
