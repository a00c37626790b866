package recipes

import (
	. "github.com/mattfenwick/netpol-harness/pkg/connectivity"
)

var (
	web       = labeled("app", "web")
	bookstore = labeled("app", "bookstore")
	foo       = labeled("app", "foo")
)

const Recipe01 = `
kind: NetworkPolicy
apiVersion: networking.k8s.io/v1
metadata:
  name: web-deny-all
spec:
  policyTypes:
    - Ingress
  podSelector:
    matchLabels:
      app: web
  ingress: []`

var Recipe01Case = &Recipe{
	ID:          "recipe-01",
	Description: "deny all traffic to an application",
	PolicyYamls: []string{Recipe01},
	Requires:    []Capability{CapabilityIngress},
	Namespaces:  namespaces("x"),
	Fixtures:    concat(abc("", web), abc("x", nil)),
	Expectations: []Expectation{
		deny("a", "b"),
		deny("x-a", "b"),
		allow("b", "a"),
		allow("x-a", "c"),
	},
}

const Recipe02 = `
kind: NetworkPolicy
apiVersion: networking.k8s.io/v1
metadata:
  name: api-allow
spec:
  policyTypes:
    - Ingress
  podSelector:
    matchLabels:
      app: bookstore
      role: api
  ingress:
    - from:
        - podSelector:
            matchLabels:
              app: bookstore`

var Recipe02Case = &Recipe{
	ID:          "recipe-02",
	Description: "limit traffic to an application",
	PolicyYamls: []string{Recipe02},
	Requires:    []Capability{CapabilityIngress},
	Namespaces:  namespaces("x"),
	Fixtures: concat(
		[]FixtureSpec{
			fixture("", "a", bookstore),
			fixture("", "b", labeled("app", "bookstore", "role", "api")),
			fixture("", "c", labeled("role", "api")),
		},
		abc("x", bookstore)),
	Expectations: []Expectation{
		allow("a", "b"),
		deny("c", "b"),
		// pod selectors only reach the policy's own namespace
		deny("x-b", "b"),
		allow("b", "a"),
	},
}

const Recipe02A = `
kind: NetworkPolicy
apiVersion: networking.k8s.io/v1
metadata:
  name: web-allow-all
spec:
  policyTypes:
    - Ingress
  podSelector:
    matchLabels:
      app: web
  ingress:
    - {}`

var Recipe02ACase = &Recipe{
	ID:          "recipe-02a",
	Description: "allow all traffic to an application, overriding a deny",
	PolicyYamls: []string{Recipe01, Recipe02A},
	Requires:    []Capability{CapabilityIngress},
	Namespaces:  namespaces("x", "y"),
	Fixtures:    concat(abc("", web), abc("x", nil), abc("y", nil)),
	Expectations: []Expectation{
		allow("a", "b"),
		allow("x-a", "b"),
		allow("y-c", "b"),
	},
}

const Recipe03 = `
kind: NetworkPolicy
apiVersion: networking.k8s.io/v1
metadata:
  name: default-deny-all
spec:
  policyTypes:
    - Ingress
  podSelector: {}
  ingress: []`

var Recipe03Case = &Recipe{
	ID:          "recipe-03",
	Description: "deny all non-whitelisted traffic to a namespace",
	PolicyYamls: []string{Recipe03},
	Requires:    []Capability{CapabilityIngress},
	Namespaces:  namespaces("x"),
	Fixtures:    concat(abc("", nil), abc("x", nil)),
	Expectations: []Expectation{
		deny("a", "b"),
		deny("x-a", "c"),
		allow("a", "x-b"),
		allow("x-a", "x-b"),
	},
}

const Recipe04 = `
kind: NetworkPolicy
apiVersion: networking.k8s.io/v1
metadata:
  namespace: secondary
  name: deny-from-other-namespaces
spec:
  policyTypes:
    - Ingress
  podSelector:
    matchLabels:
  ingress:
    - from:
        - podSelector: {}`

var Recipe04Case = &Recipe{
	ID:          "recipe-04",
	Description: "deny all traffic from other namespaces",
	PolicyYamls: []string{Recipe04},
	Requires:    []Capability{CapabilityIngress},
	Namespaces:  namespaces("x", "secondary"),
	Fixtures:    concat(abc("", nil), abc("x", nil), abc("secondary", nil)),
	Expectations: []Expectation{
		allow("secondary-a", "secondary-b"),
		deny("x-a", "secondary-b"),
		deny("a", "secondary-c"),
		allow("secondary-a", "x-a"),
	},
}

const Recipe05 = `
kind: NetworkPolicy
apiVersion: networking.k8s.io/v1
metadata:
  name: web-allow-all-namespaces
spec:
  policyTypes:
    - Ingress
  podSelector:
    matchLabels:
      app: web
  ingress:
    - from:
        - namespaceSelector: {}`

var Recipe05Case = &Recipe{
	ID:          "recipe-05",
	Description: "allow traffic to an application from all namespaces",
	PolicyYamls: []string{Recipe01, Recipe05},
	Requires:    []Capability{CapabilityIngress, CapabilityNamespaceSelector},
	Namespaces:  namespaces("x", "y"),
	Fixtures:    concat(abc("", web), abc("x", nil), abc("y", nil)),
	Expectations: []Expectation{
		allow("x-a", "b"),
		allow("y-a", "b"),
		allow("a", "b"),
	},
}

const Recipe06 = `
kind: NetworkPolicy
apiVersion: networking.k8s.io/v1
metadata:
  name: web-allow-prod
spec:
  policyTypes:
    - Ingress
  podSelector:
    matchLabels:
      app: web
  ingress:
    - from:
        - namespaceSelector:
            matchLabels:
              purpose: production`

var Recipe06Case = &Recipe{
	ID:          "recipe-06",
	Description: "allow all traffic from a namespace",
	PolicyYamls: []string{Recipe06},
	Requires:    []Capability{CapabilityIngress, CapabilityNamespaceSelector},
	Namespaces: []NamespaceSpec{
		{Alias: "x", Labels: labeled("purpose", "production")},
		{Alias: "y"},
	},
	Fixtures: concat(abc("", web), abc("x", nil), abc("y", nil)),
	Expectations: []Expectation{
		allow("x-a", "b"),
		deny("y-a", "b"),
		deny("a", "b"),
	},
}

const Recipe07 = `
kind: NetworkPolicy
apiVersion: networking.k8s.io/v1
metadata:
  name: web-allow-all-ns-monitoring
spec:
  policyTypes:
    - Ingress
  podSelector:
    matchLabels:
      app: web
  ingress:
    - from:
        - namespaceSelector:
            matchLabels:
              team: operations
          podSelector:
            matchLabels:
              type: monitoring`

var monitoring = labeled("type", "monitoring")

var Recipe07Case = &Recipe{
	ID:          "recipe-07",
	Description: "allow traffic from some pods in another namespace",
	PolicyYamls: []string{Recipe07},
	Requires:    []Capability{CapabilityIngress, CapabilityNamespaceSelector},
	Namespaces: []NamespaceSpec{
		{Alias: "x", Labels: labeled("team", "operations")},
		{Alias: "y", Labels: labeled("team", "operations")},
	},
	Fixtures: []FixtureSpec{
		fixture("", "a", monitoring),
		fixture("", "b", web),
		fixture("x", "a", monitoring),
		fixture("x", "b", nil),
		fixture("y", "a", monitoring),
	},
	Expectations: []Expectation{
		allow("x-a", "b"),
		allow("y-a", "b"),
		deny("x-b", "b"),
		// both selectors have to match
		deny("a", "b"),
	},
}

const Recipe08 = `
kind: NetworkPolicy
apiVersion: networking.k8s.io/v1
metadata:
  name: web-allow-external
spec:
  policyTypes:
    - Ingress
  podSelector:
    matchLabels:
      app: web
  ingress:
    - from: []`

var Recipe08Case = &Recipe{
	ID:          "recipe-08",
	Description: "allow traffic from anywhere to an application, overriding a deny",
	PolicyYamls: []string{Recipe01, Recipe08},
	Requires:    []Capability{CapabilityIngress},
	Namespaces:  namespaces("x"),
	Fixtures:    concat(abc("", web), abc("x", nil)),
	Expectations: []Expectation{
		allow("x-a", "b"),
		allow("a", "b"),
	},
}

const Recipe09 = `
kind: NetworkPolicy
apiVersion: networking.k8s.io/v1
metadata:
  name: api-allow-5000
spec:
  policyTypes:
    - Ingress
  podSelector:
    matchLabels:
      app: apiserver
  ingress:
    - ports:
        - port: 5000
      from:
        - podSelector:
            matchLabels:
              role: monitoring`

var Recipe09Case = &Recipe{
	ID:          "recipe-09",
	Description: "allow traffic only to a port of an application",
	PolicyYamls: []string{Recipe09},
	Requires:    []Capability{CapabilityIngress, CapabilityPortFilter},
	Namespaces:  namespaces("x"),
	Fixtures: []FixtureSpec{
		fixture("", "a", labeled("role", "monitoring"), 5000),
		fixture("", "b", labeled("app", "apiserver"), 5000, 8000),
		fixture("", "c", nil, 5000),
		fixture("x", "a", labeled("role", "monitoring"), 5000),
	},
	Expectations: []Expectation{
		onPort(allow("a", "b"), 5000),
		onPort(deny("a", "b"), 8000),
		onPort(deny("c", "b"), 5000),
		onPort(deny("x-a", "b"), 5000),
	},
}

const Recipe10 = `
kind: NetworkPolicy
apiVersion: networking.k8s.io/v1
metadata:
  name: redis-allow-services
spec:
  policyTypes:
    - Ingress
  podSelector:
    matchLabels:
      app: bookstore
      role: db
  ingress:
    - from:
        - podSelector:
            matchLabels:
              app: bookstore
              role: search
        - podSelector:
            matchLabels:
              app: bookstore
              role: api
        - podSelector:
            matchLabels:
              app: inventory
              role: web`

var Recipe10Case = &Recipe{
	ID:          "recipe-10",
	Description: "allow traffic from several applications, each matched on two labels",
	PolicyYamls: []string{Recipe10},
	Requires:    []Capability{CapabilityIngress},
	Namespaces:  namespaces("y"),
	Fixtures: []FixtureSpec{
		fixture("", "a", labeled("app", "bookstore", "role", "search")),
		fixture("", "b", labeled("app", "bookstore", "role", "db")),
		fixture("", "c", labeled("app", "bookstore", "role", "api")),
		fixture("", "d", labeled("app", "inventory", "role", "web")),
		fixture("", "e", labeled("app", "inventory")),
		fixture("y", "a", labeled("app", "bookstore", "role", "search")),
	},
	Expectations: []Expectation{
		allow("a", "b"),
		allow("c", "b"),
		allow("d", "b"),
		deny("e", "b"),
		deny("y-a", "b"),
	},
}

const Recipe11_1 = `
apiVersion: networking.k8s.io/v1
kind: NetworkPolicy
metadata:
  name: foo-deny-egress
spec:
  podSelector:
    matchLabels:
      app: foo
  policyTypes:
    - Egress
  egress: []`

var Recipe11_1Case = &Recipe{
	ID:          "recipe-11-1",
	Description: "deny egress traffic from an application",
	PolicyYamls: []string{Recipe11_1},
	Requires:    []Capability{CapabilityEgress},
	Namespaces:  namespaces("x"),
	Fixtures:    concat(abc("", foo), abc("x", nil)),
	Expectations: []Expectation{
		deny("b", "a"),
		deny("b", "x-a"),
		allow("a", "b"),
		allow("a", "c"),
	},
}

const Recipe11_2 = `
apiVersion: networking.k8s.io/v1
kind: NetworkPolicy
metadata:
  name: foo-deny-egress
spec:
  podSelector:
    matchLabels:
      app: foo
  policyTypes:
    - Egress
  egress:
    - ports:
        - port: 53
          protocol: UDP
        - port: 53
          protocol: TCP`

var Recipe11_2Case = &Recipe{
	ID:          "recipe-11-2",
	Description: "deny egress traffic from an application except DNS",
	PolicyYamls: []string{Recipe11_2},
	Requires:    []Capability{CapabilityEgress, CapabilityPortFilter},
	Namespaces:  namespaces("x"),
	Fixtures: []FixtureSpec{
		fixture("", "a", nil, 80, 53),
		fixture("", "b", foo, 80),
		fixture("x", "a", nil, 80, 53),
	},
	Expectations: []Expectation{
		onPort(allow("b", "a"), 53),
		onPort(deny("b", "a"), 80),
		onPort(allow("b", "x-a"), 53),
		onPort(allow("a", "b"), 80),
	},
}

const Recipe12 = `
kind: NetworkPolicy
apiVersion: networking.k8s.io/v1
metadata:
  name: default-deny-all-egress
spec:
  policyTypes:
    - Egress
  podSelector: {}
  egress: []`

var Recipe12Case = &Recipe{
	ID:          "recipe-12",
	Description: "deny all non-whitelisted egress traffic from a namespace",
	PolicyYamls: []string{Recipe12},
	Requires:    []Capability{CapabilityEgress},
	Namespaces:  namespaces("x"),
	Fixtures:    concat(abc("", nil), abc("x", nil)),
	Expectations: []Expectation{
		deny("a", "b"),
		deny("a", "x-a"),
		allow("x-a", "a"),
		allow("x-a", "x-b"),
	},
}

const Recipe14 = `
apiVersion: networking.k8s.io/v1
kind: NetworkPolicy
metadata:
  name: foo-deny-external-egress
spec:
  podSelector:
    matchLabels:
      app: foo
  policyTypes:
    - Egress
  egress:
    - ports:
        - port: 53
          protocol: UDP
        - port: 53
          protocol: TCP
    - to:
        - namespaceSelector: {}`

// Recipe14Case can only check that in-cluster traffic survives; fixtures can't stand in for
// external destinations.
var Recipe14Case = &Recipe{
	ID:          "recipe-14",
	Description: "deny external egress traffic from an application",
	PolicyYamls: []string{Recipe14},
	Requires:    []Capability{CapabilityEgress, CapabilityNamespaceSelector},
	Namespaces:  namespaces("x", "y"),
	Fixtures:    concat(abc("", foo), abc("x", nil), abc("y", nil)),
	Expectations: []Expectation{
		allow("b", "a"),
		allow("b", "x-a"),
		allow("b", "y-c"),
		allow("x-a", "b"),
	},
}

var AllRecipes = []*Recipe{
	Recipe01Case,
	Recipe02Case,
	Recipe02ACase,
	Recipe03Case,
	Recipe04Case,
	Recipe05Case,
	Recipe06Case,
	Recipe07Case,
	Recipe08Case,
	Recipe09Case,
	Recipe10Case,
	Recipe11_1Case,
	Recipe11_2Case,
	Recipe12Case,
	Recipe14Case,
}
